package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"inkpost.org/internal/audit"
	"inkpost.org/internal/auth"
	"inkpost.org/internal/obs"
	"inkpost.org/internal/posts"
)

// Pinger is satisfied by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks backing services before the instance takes traffic.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.DB.Ping(ctx)
}

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Auth    *auth.Service
	Authz   *auth.Authorizer
	Denials *obs.Denials
	Audit   *audit.Recorder
	Posts   *posts.Service
	Ready   ReadyProbe
	Version string

	CookieName  string
	Production  bool
	CORSOrigins []string
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64
	RateBurst int

	// TrustProxy makes X-Forwarded-For the client address. Enable only behind
	// a proxy that sets the header itself.
	TrustProxy bool
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	auth    *auth.Service
	authz   *auth.Authorizer
	denials *obs.Denials
	audit   *audit.Recorder
	posts   *posts.Service
	ready   ReadyProbe
	version string

	cookieName  string
	production  bool
	corsOrigins []string
	ratePerSec  float64
	rateBurst   int
	trustProxy  bool
}

// New validates deps and registers every route.
func New(d Deps) (*API, error) {
	if d.Auth == nil {
		return nil, errors.New("httpapi: auth service is required")
	}
	if d.Authz == nil {
		return nil, errors.New("httpapi: authorizer is required")
	}
	if d.Audit == nil {
		return nil, errors.New("httpapi: audit recorder is required")
	}
	if d.Posts == nil {
		return nil, errors.New("httpapi: posts service is required")
	}
	if d.CookieName == "" {
		d.CookieName = "inkpost_refresh"
	}
	a := &API{
		mux:         http.NewServeMux(),
		auth:        d.Auth,
		authz:       d.Authz,
		denials:     d.Denials,
		audit:       d.Audit,
		posts:       d.Posts,
		ready:       d.Ready,
		version:     d.Version,
		cookieName:  d.CookieName,
		production:  d.Production,
		corsOrigins: d.CORSOrigins,
		ratePerSec:  d.RateLimit,
		rateBurst:   d.RateBurst,
		trustProxy:  d.TrustProxy,
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.Handle("POST /v1/auth/logout", a.withAuth(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("GET /v1/auth/me", a.withAuth(http.HandlerFunc(a.handleMe)))

	a.mux.Handle("GET /v1/users/roles", a.withAuth(http.HandlerFunc(a.handleRoles)))
	a.mux.Handle("GET /v1/users", a.withAuth(http.HandlerFunc(a.handleListUsers)))
	a.mux.Handle("POST /v1/users", a.withAuth(http.HandlerFunc(a.handleCreateUser)))
	a.mux.Handle("PATCH /v1/users/{id}/role", a.withAuth(http.HandlerFunc(a.handleAssignRole)))
	a.mux.Handle("DELETE /v1/users/{id}", a.withAuth(http.HandlerFunc(a.handleDeleteUser)))

	a.mux.Handle("GET /v1/posts", a.withAuth(http.HandlerFunc(a.handleListPosts)))
	a.mux.Handle("POST /v1/posts", a.withAuth(http.HandlerFunc(a.handleCreatePost)))
	a.mux.Handle("GET /v1/posts/{id}", a.withAuth(http.HandlerFunc(a.handleGetPost)))
	a.mux.Handle("PUT /v1/posts/{id}", a.withAuth(http.HandlerFunc(a.handleUpdatePost)))
	a.mux.Handle("DELETE /v1/posts/{id}", a.withAuth(http.HandlerFunc(a.handleDeletePost)))

	a.mux.Handle("GET /v1/audit", a.withAuth(http.HandlerFunc(a.handleListAudit)))
	a.mux.Handle("GET /v1/audit/metrics", a.withAuth(http.HandlerFunc(a.handleAuditMetrics)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, maxBodyBytes)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return Correlation(h, a.trustProxy)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "inkpost-api",
		"version":   a.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.LoggerFrom(r.Context()).Warn("readiness_failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "inkpost-api",
		"version": a.version,
		"commit":  obs.Commit(),
		"roles":   auth.DefaultMatrix().Roles(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
