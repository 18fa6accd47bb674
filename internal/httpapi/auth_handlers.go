package httpapi

import (
	"net/http"
	"time"

	"inkpost.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken     string          `json:"accessToken"`
	AccessExpiresAt time.Time       `json:"accessExpiresAt"`
	User            auth.PublicUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if _, err := auth.ValidateEmail(req.Email); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	a.setRefreshCookie(w, res.Tokens)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:     res.Tokens.AccessToken,
		AccessExpiresAt: res.Tokens.AccessExpiresAt,
		User:            res.User,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var raw string
	if c, err := r.Cookie(a.cookieName); err == nil {
		raw = c.Value
	}
	res, err := a.auth.Refresh(r.Context(), raw)
	if err != nil {
		if auth.IsAuthFailure(err) {
			a.clearRefreshCookie(w)
		}
		respondErr(w, r, err)
		return
	}
	a.setRefreshCookie(w, res.Tokens)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:     res.Tokens.AccessToken,
		AccessExpiresAt: res.Tokens.AccessExpiresAt,
		User:            res.User,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var raw string
	if c, err := r.Cookie(a.cookieName); err == nil {
		raw = c.Value
	}
	if err := a.auth.Logout(r.Context(), raw, principal(r).Subject); err != nil {
		respondErr(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": principal(r)})
}

func (a *API) refreshCookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     a.cookieName,
		Value:    value,
		Path:     "/v1/auth",
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteLaxMode,
	}
	if a.production {
		c.SameSite = http.SameSiteStrictMode
	}
	if value == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.Expires = expires
	}
	return c
}

func (a *API) setRefreshCookie(w http.ResponseWriter, t auth.TokenPair) {
	http.SetCookie(w, a.refreshCookie(t.RefreshToken, t.RefreshExpiresAt))
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, a.refreshCookie("", time.Time{}))
}
