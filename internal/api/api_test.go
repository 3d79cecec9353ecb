package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dreamstone/dreamstone/internal/auth"
	"github.com/dreamstone/dreamstone/internal/flow"
	"github.com/dreamstone/dreamstone/internal/models"
	"github.com/dreamstone/dreamstone/internal/store"
)

// mockModelClient returns a canned reply or error and counts provider calls.
type mockModelClient struct {
	reply string
	err   error
	calls int
}

func (m *mockModelClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	st      *store.InMemoryStore
	model   *mockModelClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewInMemoryStore()
	model := &mockModelClient{}
	authSvc, err := auth.NewService(auth.WithSecret("test-secret"))
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}
	s := NewServer(st, flow.NewEngine(model), authSvc)
	return &testEnv{server: s, handler: s.Handler(), st: st, model: model}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its session token.
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", "", models.Credentials{
		Username: username,
		Password: "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result struct {
			Token string `json:"token"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	if resp.Result.Token == "" {
		t.Fatal("register response missing token")
	}
	return resp.Result.Token
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "daiyu")

	rec := env.do(t, http.MethodPost, "/auth/login", "", models.Credentials{
		Username: "daiyu",
		Password: "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("login returned status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "baoyu")

	rec := env.do(t, http.MethodPost, "/auth/register", "", models.Credentials{
		Username: "baoyu",
		Password: "another-pass",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name  string
		creds models.Credentials
	}{
		{"missing username", models.Credentials{Password: "longenough"}},
		{"short password", models.Credentials{Username: "xifeng", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/auth/register", "", tc.creds)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "daiyu")

	rec := env.do(t, http.MethodPost, "/auth/login", "", models.Credentials{
		Username: "daiyu",
		Password: "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/login", "", models.Credentials{
		Username: "nobody",
		Password: "irrelevant1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/me"},
		{http.MethodGet, "/chapters"},
		{http.MethodGet, "/progress"},
		{http.MethodPost, "/flows/explain-selection"},
		{http.MethodGet, "/analytics"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: expected 401, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestMeHandler(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	rec := env.do(t, http.MethodGet, "/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result models.User `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result.Username != "daiyu" {
		t.Errorf("expected username daiyu, got %s", resp.Result.Username)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("password")) {
		t.Error("response must not expose password material")
	}
}

func TestChaptersList(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	rec := env.do(t, http.MethodGet, "/chapters", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Result []struct {
			Number int    `json:"number"`
			Title  string `json:"title"`
			Body   string `json:"body"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Result) == 0 {
		t.Fatal("expected a non-empty chapter catalog")
	}
	for _, c := range resp.Result {
		if c.Body != "" {
			t.Errorf("chapter %d: catalog entries must not carry bodies", c.Number)
		}
	}
}

func TestChapterDetail(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	rec := env.do(t, http.MethodGet, "/chapters/1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result struct {
			Number int    `json:"number"`
			Body   string `json:"body"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result.Number != 1 {
		t.Errorf("expected chapter 1, got %d", resp.Result.Number)
	}
	if resp.Result.Body == "" {
		t.Error("chapter detail must include the body")
	}
}

func TestChapterNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	rec := env.do(t, http.MethodGet, "/chapters/999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/chapters/abc", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for non-numeric chapter, got %d", rec.Code)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	rec := env.do(t, http.MethodGet, "/progress", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for empty progress, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/progress", token, models.ReadingProgress{Chapter: 5, Position: 120})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 saving progress, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/progress", token, nil)
	var resp struct {
		Result models.ReadingProgress `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result.Chapter != 5 || resp.Result.Position != 120 {
		t.Errorf("expected chapter 5 position 120, got %+v", resp.Result)
	}
	if resp.Result.Username != "daiyu" {
		t.Errorf("progress must carry the authenticated username, got %q", resp.Result.Username)
	}
}

func TestProgressValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	rec := env.do(t, http.MethodPut, "/progress", token, models.ReadingProgress{Chapter: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for chapter 0, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/progress", token, models.ReadingProgress{Chapter: 1, Position: -3})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for negative position, got %d", rec.Code)
	}
}

func TestProgressIsolatedPerUser(t *testing.T) {
	env := newTestEnv(t)
	tokenA := env.register(t, "daiyu")
	tokenB := env.register(t, "baoyu")

	rec := env.do(t, http.MethodPut, "/progress", tokenA, models.ReadingProgress{Chapter: 23, Position: 7})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 saving progress, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/progress", tokenB, nil)
	resp := decodeEnvelope(t, rec)
	if resp.Result != nil {
		t.Errorf("expected no progress for second reader, got %v", resp.Result)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "daiyu")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/register"},
		{http.MethodDelete, "/chapters"},
		{http.MethodPost, "/progress"},
		{http.MethodPut, "/flows"},
	}
	for _, tc := range cases {
		rec := env.do(t, tc.method, tc.path, token, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestBuildStoreDefaultsToMemory(t *testing.T) {
	st, err := buildStore(nil)
	if err != nil {
		t.Fatalf("buildStore failed: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*store.InMemoryStore); !ok {
		t.Errorf("expected in-memory store, got %T", st)
	}
}
