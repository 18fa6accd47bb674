package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"inkpost.org/internal/audit"
	"inkpost.org/internal/auth"
	"inkpost.org/internal/obs"
	"inkpost.org/internal/posts"
)

const (
	adminEmail   = "admin@example.com"
	editorEmail  = "editor@example.com"
	editor2Email = "second.editor@example.com"
	viewerEmail  = "viewer@example.com"
	testPassword = "Password123!"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	denials *obs.Denials
	users   map[string]*auth.User
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	prev := obs.Logger()
	obs.SetLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(func() { obs.SetLogger(prev) })

	tokens, err := auth.NewTokenService("access-secret-for-tests", "refresh-secret-for-tests")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	svc, err := auth.NewService(auth.NewMemoryStore(), tokens)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	denials, err := obs.NewDenials(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("denials: %v", err)
	}
	authz := auth.NewAuthorizer(auth.NewEvaluator(nil), denials)
	recorder := audit.NewRecorder(audit.NewMemoryStore())
	postSvc, err := posts.NewService(posts.NewMemoryStore(), authz, recorder)
	if err != nil {
		t.Fatalf("posts service: %v", err)
	}

	api, err := New(Deps{
		Auth:        svc,
		Authz:       authz,
		Denials:     denials,
		Audit:       recorder,
		Posts:       postSvc,
		Version:     "test",
		CookieName:  "inkpost_refresh",
		CORSOrigins: []string{"http://localhost:5173"},
	})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}

	users := make(map[string]*auth.User)
	for _, u := range []auth.NewUser{
		{Name: "Alice Admin", Email: adminEmail, Password: testPassword, Role: auth.RoleAdmin},
		{Name: "Eddie Editor", Email: editorEmail, Password: testPassword, Role: auth.RoleEditor},
		{Name: "Erin Editor", Email: editor2Email, Password: testPassword, Role: auth.RoleEditor},
		{Name: "Violet Viewer", Email: viewerEmail, Password: testPassword, Role: auth.RoleViewer},
	} {
		created, err := svc.CreateUser(context.Background(), u)
		if err != nil {
			t.Fatalf("seed %s: %v", u.Email, err)
		}
		users[u.Email] = created
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		denials: denials,
		users:   users,
	}
}

func (c *apiClient) do(method, path string, body any, token string, cookie *http.Cookie, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

// login returns the access token and the refresh cookie.
func (c *apiClient) login(email string) (string, *http.Cookie) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": testPassword,
	}, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: unexpected status %d", email, resp.StatusCode)
	}
	cookie := refreshCookie(c.t, resp)
	payload := decode[sessionResponse](c.t, resp)
	if payload.AccessToken == "" {
		c.t.Fatalf("empty access token for %s", email)
	}
	return payload.AccessToken, cookie
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "inkpost_refresh" {
			return c
		}
	}
	t.Fatalf("refresh cookie not set")
	return nil
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, code int, msg string) errorResponse {
	t.Helper()
	if resp.StatusCode != code {
		t.Fatalf("expected %d, got %d", code, resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if msg != "" && body.Error != msg {
		t.Fatalf("expected error %q, got %q", msg, body.Error)
	}
	if body.CorrelationID == "" {
		t.Fatalf("expected correlation_id in error body")
	}
	return body
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/healthz", nil, "", nil, nil)
	body := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected healthz: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get(correlationHeader) == "" {
		t.Fatalf("expected generated correlation id header")
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return io.ErrUnexpectedEOF }

func TestReadyProbe(t *testing.T) {
	if err := (ReadyProbe{}).Check(context.Background()); err != nil {
		t.Fatalf("empty probe should be ready: %v", err)
	}
	if err := (ReadyProbe{DB: failingPinger{}}).Check(context.Background()); err == nil {
		t.Fatal("expected failing probe")
	}
}

func TestLoginIssuesAccessTokenAndRefreshCookie(t *testing.T) {
	c := newTestAPI(t)
	adminToken, _ := c.login(adminEmail)

	resp := c.do(http.MethodPost, "/v1/users", map[string]string{
		"name":     "New Editor",
		"email":    "new.editor@example.com",
		"password": "EditorPass123!",
		"role":     "editor",
	}, adminToken, nil, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d", resp.StatusCode)
	}
	created := decode[map[string]auth.PublicUser](t, resp)["user"]
	if created.Role != auth.RoleEditor || created.ID == "" {
		t.Fatalf("unexpected created user: %+v", created)
	}

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "NEW.EDITOR@example.com",
		"password": "EditorPass123!",
	}, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	cookie := refreshCookie(t, resp)
	if !cookie.HttpOnly || cookie.Path != "/v1/auth" || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.Secure {
		t.Fatalf("cookie must not be Secure outside production")
	}
	session := decode[sessionResponse](t, resp)
	if session.AccessToken == "" || session.User.ID != created.ID {
		t.Fatalf("unexpected session: %+v", session)
	}

	resp = c.do(http.MethodGet, "/v1/auth/me", nil, session.AccessToken, nil, nil)
	me := decode[map[string]auth.Principal](t, resp)["user"]
	if me.Subject != created.ID || me.Role != auth.RoleEditor {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	c := newTestAPI(t)

	wrong := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": editorEmail, "password": "not-the-password",
	}, "", nil, nil)
	unknown := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "not-the-password",
	}, "", nil, nil)
	expectError(t, wrong, http.StatusUnauthorized, "authentication required")
	expectError(t, unknown, http.StatusUnauthorized, "authentication required")

	malformed := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "not-an-email", "password": testPassword,
	}, "", nil, nil)
	expectError(t, malformed, http.StatusBadRequest, "")

	extra := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": editorEmail, "password": testPassword, "role": "admin",
	}, "", nil, nil)
	expectError(t, extra, http.StatusBadRequest, "")
}

func TestViewerCannotCreatePost(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login(viewerEmail)

	resp := c.do(http.MethodPost, "/v1/posts", map[string]string{
		"title":   "Viewer attempt",
		"content": "This should never be stored.",
	}, token, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: posts:create")

	snap := c.denials.Snapshot()
	if snap.Total != 1 || snap.ByAction["posts:create"] != 1 {
		t.Fatalf("expected one posts:create denial, got %+v", snap)
	}
}

func TestViewerWriteIsDeniedBeforeBodyValidation(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login(viewerEmail)
	bad := map[string]any{"title": "x", "bogus": 1}

	resp := c.do(http.MethodPost, "/v1/posts", bad, token, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: posts:create")

	resp = c.do(http.MethodPut, "/v1/posts/missing", bad, token, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: posts:update")

	snap := c.denials.Snapshot()
	if snap.Total != 2 || snap.ByAction["posts:create"] != 1 || snap.ByAction["posts:update"] != 1 {
		t.Fatalf("expected one denial per refused write, got %+v", snap)
	}
}

func TestRefreshRotationRejectsReplay(t *testing.T) {
	c := newTestAPI(t)
	_, first := c.login(editorEmail)

	resp := c.do(http.MethodPost, "/v1/auth/refresh", nil, "", first, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	second := refreshCookie(t, resp)
	if second.Value == first.Value {
		t.Fatal("refresh must rotate the token")
	}
	if session := decode[sessionResponse](t, resp); session.AccessToken == "" {
		t.Fatal("refresh must return an access token")
	}

	replay := c.do(http.MethodPost, "/v1/auth/refresh", nil, "", first, nil)
	expectError(t, replay, http.StatusUnauthorized, "authentication required")

	resp = c.do(http.MethodPost, "/v1/auth/refresh", nil, "", second, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated token refresh: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshWithoutCookieEchoesCorrelationID(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPost, "/v1/auth/refresh", nil, "", nil, map[string]string{
		correlationHeader: "corr-123",
	})
	if got := resp.Header.Get(correlationHeader); got != "corr-123" {
		t.Fatalf("expected echoed correlation id, got %q", got)
	}
	body := expectError(t, resp, http.StatusUnauthorized, "authentication required")
	if body.CorrelationID != "corr-123" {
		t.Fatalf("expected correlation id in body, got %q", body.CorrelationID)
	}
}

func TestEditorOwnershipOnUpdate(t *testing.T) {
	c := newTestAPI(t)
	editorToken, _ := c.login(editorEmail)
	otherToken, _ := c.login(editor2Email)

	resp := c.do(http.MethodPost, "/v1/posts", map[string]string{
		"title":   "Editor Guide",
		"content": "How editors work on drafts.",
	}, editorToken, nil, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	post := decode[map[string]posts.Post](t, resp)["post"]
	if post.AuthorID != c.users[editorEmail].ID || post.Status != posts.StatusDraft {
		t.Fatalf("unexpected post: %+v", post)
	}

	update := map[string]string{
		"title":   "Editor Guide v2",
		"content": "How editors work on drafts, revised.",
		"status":  "published",
	}
	resp = c.do(http.MethodPut, "/v1/posts/"+post.ID, update, editorToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("own update: expected 200, got %d", resp.StatusCode)
	}
	updated := decode[map[string]posts.Post](t, resp)["post"]
	if updated.PublishedAt == nil {
		t.Fatal("expected publishedAt on first publish")
	}

	resp = c.do(http.MethodPut, "/v1/posts/"+post.ID, update, otherToken, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: posts:update")

	resp = c.do(http.MethodDelete, "/v1/posts/"+post.ID, nil, otherToken, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: posts:delete")

	if snap := c.denials.Snapshot(); snap.Total != 0 {
		t.Fatalf("ownership mismatches must not count as role denials, got %+v", snap)
	}

	resp = c.do(http.MethodDelete, "/v1/posts/"+post.ID, nil, editorToken, nil, nil)
	if got := decode[messageResponse](t, resp); resp.StatusCode != http.StatusOK || got.Message != "Post removed" {
		t.Fatalf("own delete: %d %+v", resp.StatusCode, got)
	}
	resp = c.do(http.MethodGet, "/v1/posts/"+post.ID, nil, editorToken, nil, nil)
	expectError(t, resp, http.StatusNotFound, "")
}

func TestViewerSeesOnlyPublishedPosts(t *testing.T) {
	c := newTestAPI(t)
	adminToken, _ := c.login(adminEmail)
	viewerToken, _ := c.login(viewerEmail)

	var draftID string
	for _, status := range []string{"draft", "published"} {
		resp := c.do(http.MethodPost, "/v1/posts", map[string]string{
			"title":   "Post " + status,
			"content": "Body of the " + status + " post.",
			"status":  status,
		}, adminToken, nil, nil)
		p := decode[map[string]posts.Post](t, resp)["post"]
		if status == "draft" {
			draftID = p.ID
		}
	}

	resp := c.do(http.MethodGet, "/v1/posts", nil, viewerToken, nil, nil)
	list := decode[map[string][]posts.Post](t, resp)["posts"]
	if len(list) != 1 || list[0].Status != posts.StatusPublished {
		t.Fatalf("viewer should see one published post, got %+v", list)
	}

	resp = c.do(http.MethodGet, "/v1/posts/"+draftID, nil, viewerToken, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: posts:read")
}

func TestLogoutRevokesRefreshAndIsIdempotent(t *testing.T) {
	c := newTestAPI(t)
	token, cookie := c.login(editorEmail)

	resp := c.do(http.MethodPost, "/v1/auth/logout", nil, token, cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	if cleared := refreshCookie(t, resp); cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}
	if got := decode[messageResponse](t, resp); got.Message != "Logged out" {
		t.Fatalf("unexpected logout body: %+v", got)
	}

	resp = c.do(http.MethodPost, "/v1/auth/refresh", nil, "", cookie, nil)
	expectError(t, resp, http.StatusUnauthorized, "authentication required")

	resp = c.do(http.MethodPost, "/v1/auth/logout", nil, token, cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/auth/logout", nil, "", cookie, nil)
	expectError(t, resp, http.StatusUnauthorized, "authentication required")
}

func TestViewerDeniedUsersReadIsCounted(t *testing.T) {
	c := newTestAPI(t)
	viewerToken, _ := c.login(viewerEmail)
	adminToken, _ := c.login(adminEmail)

	resp := c.do(http.MethodGet, "/v1/users", nil, viewerToken, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: users:read")

	resp = c.do(http.MethodGet, "/v1/audit/metrics", nil, adminToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
	snap := decode[map[string]obs.DenialSnapshot](t, resp)["authorizationDenials"]
	if snap.Total != 1 || snap.ByAction["users:read"] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	resp = c.do(http.MethodGet, "/v1/users?role=viewer", nil, adminToken, nil, nil)
	users := decode[map[string][]auth.PublicUser](t, resp)["users"]
	if len(users) != 1 || users[0].Email != viewerEmail {
		t.Fatalf("unexpected filtered users: %+v", users)
	}
}

func TestUserAdministrationIsAudited(t *testing.T) {
	c := newTestAPI(t)
	adminToken, _ := c.login(adminEmail)
	headers := map[string]string{correlationHeader: "admin-flow"}

	resp := c.do(http.MethodPost, "/v1/users", map[string]string{
		"name": "Temp User", "email": "temp@example.com", "password": "TempPass1", "role": "viewer",
	}, adminToken, nil, headers)
	created := decode[map[string]auth.PublicUser](t, resp)["user"]

	resp = c.do(http.MethodPost, "/v1/users", map[string]string{
		"name": "Temp Again", "email": "temp@example.com", "password": "TempPass1", "role": "viewer",
	}, adminToken, nil, nil)
	expectError(t, resp, http.StatusConflict, "")

	resp = c.do(http.MethodPatch, "/v1/users/"+created.ID+"/role", map[string]string{"role": "superuser"}, adminToken, nil, nil)
	expectError(t, resp, http.StatusBadRequest, "")

	resp = c.do(http.MethodPatch, "/v1/users/"+created.ID+"/role", map[string]string{"role": "editor"}, adminToken, nil, headers)
	if got := decode[map[string]auth.PublicUser](t, resp)["user"]; got.Role != auth.RoleEditor {
		t.Fatalf("expected editor role, got %+v", got)
	}

	resp = c.do(http.MethodDelete, "/v1/users/"+created.ID, nil, adminToken, nil, headers)
	if got := decode[messageResponse](t, resp); got.Message != "User removed" {
		t.Fatalf("unexpected delete body: %+v", got)
	}
	resp = c.do(http.MethodDelete, "/v1/users/"+created.ID, nil, adminToken, nil, nil)
	expectError(t, resp, http.StatusNotFound, "")

	resp = c.do(http.MethodGet, "/v1/audit?limit=2", nil, adminToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", resp.StatusCode)
	}
	page := decode[audit.ListResult](t, resp)
	if page.Total != 3 || len(page.Entries) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", page.Total, len(page.Entries))
	}
	first, second := page.Entries[0], page.Entries[1]
	if first.Action != "users:delete" || second.Action != "users:assign-role" {
		t.Fatalf("unexpected order: %s, %s", first.Action, second.Action)
	}
	if first.CorrelationID != "admin-flow" || first.ActorID != c.users[adminEmail].ID {
		t.Fatalf("unexpected entry: %+v", first)
	}
	if second.Snapshot["previousRole"] != "viewer" || second.Snapshot["newRole"] != "editor" {
		t.Fatalf("unexpected role snapshot: %+v", second.Snapshot)
	}

	resp = c.do(http.MethodGet, "/v1/audit?limit=zero", nil, adminToken, nil, nil)
	expectError(t, resp, http.StatusBadRequest, "")
}

func TestEditorCannotReadAudit(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login(editorEmail)
	resp := c.do(http.MethodGet, "/v1/audit", nil, token, nil, nil)
	expectError(t, resp, http.StatusForbidden, "forbidden: audit:read")
}

func TestRolesListedForAnyAuthenticatedUser(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login(viewerEmail)
	resp := c.do(http.MethodGet, "/v1/users/roles", nil, token, nil, nil)
	roles := decode[map[string][]string](t, resp)["roles"]
	if len(roles) != 3 {
		t.Fatalf("expected three roles, got %v", roles)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/v1/nope", nil, "", nil, nil)
	expectError(t, resp, http.StatusNotFound, "route not found")
}
