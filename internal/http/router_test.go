package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sitekit/internal/apiclient"
	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
	"sitekit/internal/service"
)

type stubSiteBackend struct {
	mu     sync.Mutex
	status int
	body   string
	hits   map[string]int
}

func (b *stubSiteBackend) set(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status, b.body = status, body
}

func (b *stubSiteBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *stubSiteBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	status, body := b.status, b.body
	b.hits[r.URL.Path]++
	b.mu.Unlock()
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type testSite struct {
	router   *gin.Engine
	backend  *stubSiteBackend
	registry *service.Registry
	cookie   *http.Cookie
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	return newTestSiteWith(t, kvstore.NewMemoryBackend(0), 0)
}

func newTestSiteWith(t *testing.T, storage kvstore.Backend, maxOrigins int) *testSite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := &stubSiteBackend{status: http.StatusServiceUnavailable, hits: make(map[string]int)}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	users, err := service.NewUserDirectory(
		service.AdminCredential{Username: "admin", Password: "s3cret!"},
		service.DemoUsers(),
		bcrypt.MinCost,
	)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	registry := service.NewRegistry(service.RegistryDeps{
		Store:          kvstore.New(storage, zap.NewNop()),
		Tokens:         service.NewTokenService("test-secret", time.Hour),
		Limiter:        service.NewLoginRateLimiter(15*time.Minute, 5),
		API:            apiclient.NewClient(srv.URL, time.Second, srv.Client(), zap.NewNop()),
		Users:          users,
		Logger:         zap.NewNop(),
		SessionTimeout: 30 * time.Minute,
		SessionWarning: 5 * time.Minute,
		MaxOrigins:     maxOrigins,
	})

	router := NewRouter(zap.NewNop(), registry, NewAuthHandler(zap.NewNop()), NewSiteHandler(zap.NewNop(), nil), false)
	return &testSite{router: router, backend: backend, registry: registry}
}

func (s *testSite) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == originCookieName {
			s.cookie = c
		}
	}
	return rec
}

func (s *testSite) login(t *testing.T, username, password string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/login", map[string]any{"username": username, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d %s", username, rec.Code, rec.Body.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestRouter_IssuesOriginCookie(t *testing.T) {
	site := newTestSite(t)
	site.do(t, http.MethodGet, "/auth/session", nil)
	if site.cookie == nil || site.cookie.Value == "" || !site.cookie.HttpOnly {
		t.Fatalf("expected http-only origin cookie, got %+v", site.cookie)
	}

	first := site.cookie.Value
	site.do(t, http.MethodGet, "/auth/session", nil)
	if site.cookie.Value != first {
		t.Fatalf("origin cookie should be stable")
	}

	site.cookie = &http.Cookie{Name: originCookieName, Value: "not-a-uuid"}
	site.do(t, http.MethodGet, "/auth/session", nil)
	if site.cookie.Value == "not-a-uuid" {
		t.Fatalf("expected invalid origin to be replaced")
	}
}

func TestRouter_LoginSessionLogout(t *testing.T) {
	site := newTestSite(t)
	site.login(t, "admin", "s3cret!")

	rec := site.do(t, http.MethodGet, "/auth/session", nil)
	body := decodeBody(t, rec)
	if body["state"] != string(domain.SessionActive) || body["remaining_seconds"].(float64) <= 0 {
		t.Fatalf("unexpected session %+v", body)
	}

	rec = site.do(t, http.MethodGet, "/admin/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected dashboard, got %d", rec.Code)
	}

	rec = site.do(t, http.MethodPost, "/auth/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	rec = site.do(t, http.MethodGet, "/admin/dashboard", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != loginPath {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRouter_LoginErrors(t *testing.T) {
	site := newTestSite(t)
	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing fields", map[string]any{"username": "admin"}, http.StatusBadRequest},
		{"bad password", map[string]any{"username": "admin", "password": "nope"}, http.StatusUnauthorized},
		{"inactive", map[string]any{"username": "oldclient", "password": "Client#2019"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := site.do(t, http.MethodPost, "/auth/login", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRouter_RemoteRejectionIsFinal(t *testing.T) {
	site := newTestSite(t)
	site.backend.set(http.StatusUnauthorized, `{"error":"bad credentials"}`)
	rec := site.do(t, http.MethodPost, "/auth/login", map[string]any{"username": "admin", "password": "s3cret!"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_ProtectedRoutesWithoutSession(t *testing.T) {
	site := newTestSite(t)
	if rec := site.do(t, http.MethodGet, "/admin/dashboard", nil); rec.Code != http.StatusFound {
		t.Fatalf("expected admin redirect, got %d", rec.Code)
	}
	if rec := site.do(t, http.MethodGet, "/client/projects", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_ClientCannotOpenAdmin(t *testing.T) {
	site := newTestSite(t)
	site.login(t, "acme", "Client#2024")
	if rec := site.do(t, http.MethodGet, "/admin/dashboard", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRouter_ClientProjectsFromCache(t *testing.T) {
	site := newTestSite(t)
	site.backend.set(http.StatusOK, `[{"id":"p-101","name":"Lakeside"},{"id":"p-200","name":"Depot"}]`)
	site.do(t, http.MethodGet, "/projects", nil)

	site.backend.set(http.StatusServiceUnavailable, ``)
	site.login(t, "acme", "Client#2024")

	rec := site.do(t, http.MethodGet, "/client/projects", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	projects := decodeBody(t, rec)["projects"].([]any)
	if len(projects) != 1 || projects[0].(map[string]any)["id"] != "p-101" {
		t.Fatalf("unexpected projects %+v", projects)
	}

	if rec := site.do(t, http.MethodGet, "/client/projects/p-200", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on foreign project, got %d", rec.Code)
	}
	if rec := site.do(t, http.MethodGet, "/client/projects/p-101", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected own project, got %d", rec.Code)
	}
}

func TestRouter_ValidateContact(t *testing.T) {
	site := newTestSite(t)
	rec := site.do(t, http.MethodPost, "/validate/contact", map[string]string{"name": "Ana", "email": "foo@"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	errs := decodeBody(t, rec)["errors"].(map[string]any)
	if errs["email"] != "email is not valid" || errs["message"] != "message is required" {
		t.Fatalf("unexpected errors %+v", errs)
	}

	rec = site.do(t, http.MethodPost, "/validate/contact", map[string]string{
		"name": "Ana", "email": "ana@example.com", "message": "Please call me back.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouter_QuoteQueuedThenSynced(t *testing.T) {
	site := newTestSite(t)
	quote := map[string]string{
		"name": "Ana Perez", "email": "ana@example.com", "phone": "555-123-4567",
		"message": "Two-story addition, 800 sqft.",
	}
	rec := site.do(t, http.MethodPost, "/quotes", quote)
	if rec.Code != http.StatusAccepted || decodeBody(t, rec)["source"] != string(apiclient.SourceQueued) {
		t.Fatalf("expected queued 202, got %d %s", rec.Code, rec.Body.String())
	}

	site.backend.set(http.StatusCreated, ``)
	rec = site.do(t, http.MethodPost, "/sync", nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["sent"].(float64) != 1 {
		t.Fatalf("expected one item synced, got %d %s", rec.Code, rec.Body.String())
	}
	if site.backend.count("/quotes") != 2 {
		t.Fatalf("expected quote resent, hits=%d", site.backend.count("/quotes"))
	}

	rec = site.do(t, http.MethodPost, "/newsletter", map[string]string{"email": "ana@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 once backend is up, got %d", rec.Code)
	}
}

func TestRouter_CostEstimate(t *testing.T) {
	site := newTestSite(t)
	rec := site.do(t, http.MethodPost, "/cost-estimates", map[string]any{"project_type": "castle", "square_feet": 0})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	rec = site.do(t, http.MethodPost, "/cost-estimates", map[string]any{
		"project_type": "commercial", "square_feet": 1000, "quality": "standard",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	estimate := body["estimate"].(map[string]any)
	if estimate["total"].(float64) != 200000 || body["source"] != string(apiclient.SourceQueued) {
		t.Fatalf("unexpected estimate response %+v", body)
	}
}

func TestRouter_MetricsSummary(t *testing.T) {
	site := newTestSite(t)
	site.do(t, http.MethodGet, "/auth/session", nil)
	site.do(t, http.MethodGet, "/auth/session", nil)
	rec := site.do(t, http.MethodGet, "/metrics/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	metrics := decodeBody(t, rec)["metrics"].([]any)
	if len(metrics) != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	// la primera peticion estrena cookie y no se mide
	m := metrics[0].(map[string]any)
	if m["name"] != "GET /auth/session" || m["count"].(float64) != 1 {
		t.Fatalf("unexpected metric %+v", m)
	}
}

func TestRouter_CookielessTrafficLeavesStorageUntouched(t *testing.T) {
	storage := kvstore.NewMemoryBackend(64 << 10)
	site := newTestSiteWith(t, storage, 50)

	for i := 0; i < 1000; i++ {
		site.cookie = nil
		rec := site.do(t, http.MethodGet, "/auth/session", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if used := storage.Used(); used != 0 {
		t.Fatalf("expected no bytes stored by anonymous visits, got %d", used)
	}
	if n := site.registry.Len(); n > 50 {
		t.Fatalf("expected at most 50 live origins, got %d", n)
	}

	site.cookie = nil
	site.do(t, http.MethodGet, "/auth/session", nil)
	site.login(t, "admin", "s3cret!")
}
