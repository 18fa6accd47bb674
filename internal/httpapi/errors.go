package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inkpost.org/internal/auth"
	"inkpost.org/internal/obs"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{
		Error:         msg,
		CorrelationID: obs.CorrelationID(r.Context()),
	})
}

// respondErr maps domain errors onto status codes. Authentication failures are
// uniform; unexpected errors are logged in full and hidden from the client.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.DeniedError
	switch {
	case auth.IsAuthFailure(err):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &denied):
		writeError(w, r, http.StatusForbidden, "forbidden: "+string(denied.Action))
	case errors.Is(err, auth.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.LoggerFrom(r.Context()).Error("request_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", auth.ErrValidation)
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: request body too large", auth.ErrValidation)
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return fmt.Errorf("%w: %s", auth.ErrValidation, strings.TrimPrefix(err.Error(), "json: "))
		default:
			return fmt.Errorf("%w: malformed JSON", auth.ErrValidation)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", auth.ErrValidation)
	}
	return nil
}
