package httpapi

import (
	"context"
	"net/http"
	"strings"

	"inkpost.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type holderKey struct{}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// withAuth requires a valid access token. Every failure yields the same 401.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			respondErr(w, r, auth.ErrTokenInvalid)
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		if h, ok := r.Context().Value(holderKey{}).(*principalHolder); ok {
			h.set(principal)
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principal returns the caller set by withAuth.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// authorize evaluates action for the caller, counting a refusal as a denial.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, action auth.Action) bool {
	if _, err := a.authz.Authorize(r.Context(), principal(r), action); err != nil {
		respondErr(w, r, err)
		return false
	}
	return true
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}
