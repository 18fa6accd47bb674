package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"inkpost.org/internal/audit"
	"inkpost.org/internal/auth"
)

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionAuditRead) {
		return
	}
	limit := audit.MaxListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			respondErr(w, r, fmt.Errorf("%w: limit must be a positive integer", auth.ErrValidation))
			return
		}
		limit = n
	}
	res, err := a.audit.List(r.Context(), limit)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAuditMetrics(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionAuditRead) {
		return
	}
	// Snapshot is nil-safe when no collector was wired.
	writeJSON(w, http.StatusOK, map[string]any{"authorizationDenials": a.denials.Snapshot()})
}
