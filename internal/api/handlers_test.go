package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"wellnessgo/internal/conversation"
	"wellnessgo/internal/healthmem"
	"wellnessgo/internal/metrics"
	"wellnessgo/internal/ratelimit"
	"wellnessgo/internal/service/ai"
	"wellnessgo/internal/storage"
	"wellnessgo/internal/worker"
)

type stubProvider struct {
	name string
	text string
	err  error

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.text, p.err
}

type testServer struct {
	router        *gin.Engine
	conversations *conversation.Registry
	memories      *healthmem.Registry
}

type serverOptions struct {
	maxRequests    int
	allowedOrigins []string
	devMode        bool
}

func newTestServer(t *testing.T, opts serverOptions, providers ...ai.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := storage.NewMemoryKV()
	conversations := conversation.NewRegistry(kv, conversation.Options{}, time.Minute, zerolog.Nop())
	memories := healthmem.NewRegistry(kv, nil, time.Minute, zerolog.Nop())
	workers := worker.NewManager(time.Minute, zerolog.Nop())
	t.Cleanup(workers.Close)

	reg := prometheus.NewRegistry()
	gateway := ai.NewGateway(providers, ai.Deps{
		Limiter:       ratelimit.New(),
		Conversations: conversations,
		Memories:      memories,
		Workers:       workers,
		Metrics:       metrics.New(reg),
		Logger:        zerolog.Nop(),
	}, ai.Options{MaxRequests: opts.maxRequests, Window: time.Minute})

	handler := NewHandler(gateway, conversations, memories, Options{
		AllowedOrigins: opts.allowedOrigins,
		DevMode:        opts.devMode,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         zerolog.Nop(),
	})
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, conversations: conversations, memories: memories}
}

func (s *testServer) messageCount(session string) int {
	cur := s.conversations.Get(context.Background(), session).Current()
	if cur == nil {
		return 0
	}
	return len(cur.Messages)
}

type chatBody struct {
	Text        string   `json:"text"`
	Source      string   `json:"source"`
	Success     bool     `json:"success"`
	Suggestions []string `json:"suggestions"`
	Error       string   `json:"error"`
	Remaining   *int     `json:"remaining"`
	ResetInMs   *int64   `json:"resetInMs"`
}

var sessionHeader = map[string]string{"X-Session-ID": "sess-1"}

func TestChatEndToEndArabic(t *testing.T) {
	primary := &stubProvider{name: "primary", text: "سلامتك! قلل القهوة واشرب الماء."}
	secondary := &stubProvider{name: "secondary", text: "backup"}
	srv := newTestServer(t, serverOptions{}, primary, secondary)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{
		"message": "أعاني من صداع وأشرب القهوة كثيراً",
	}, sessionHeader)
	assertStatus(t, resp, http.StatusOK)

	var body chatBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if !body.Success || body.Text == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Source != "primary" && body.Source != "secondary" {
		t.Fatalf("unexpected source %q", body.Source)
	}
	if len(body.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %v", body.Suggestions)
	}

	profileResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/health-profile", nil, sessionHeader)
	assertStatus(t, profileResp, http.StatusOK)
	var profileBody struct {
		Profile struct {
			Conditions []string `json:"conditions"`
		} `json:"profile"`
		Context string `json:"context"`
	}
	decodeJSON(t, profileResp.Body.Bytes(), &profileBody)
	found := false
	for _, c := range profileBody.Profile.Conditions {
		if strings.Contains(c, "صداع") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected headache condition, got %v", profileBody.Profile.Conditions)
	}
	if !strings.Contains(profileBody.Context, "صداع") {
		t.Fatalf("expected rendered context to mention the condition: %q", profileBody.Context)
	}
}

func TestChatFallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("boom")}
	secondary := &stubProvider{name: "secondary", text: "answer from secondary"}
	srv := newTestServer(t, serverOptions{}, primary, secondary)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hello"}, sessionHeader)
	assertStatus(t, resp, http.StatusOK)
	var body chatBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Source != "secondary" || body.Text != "answer from secondary" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if got := srv.messageCount("sess-1"); got != 2 {
		t.Fatalf("expected exactly one user+assistant pair, got %d messages", got)
	}
}

func TestChatExhaustionReturns503(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("down")}
	secondary := &stubProvider{name: "secondary", err: errors.New("down too")}
	srv := newTestServer(t, serverOptions{}, primary, secondary)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hello"}, sessionHeader)
	assertStatus(t, resp, http.StatusServiceUnavailable)
	var body chatBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Success || body.Error != msgExhausted {
		t.Fatalf("unexpected body: %+v", body)
	}
	if !strings.Contains(body.Error, "\n") {
		t.Fatalf("expected multi-line remediation text")
	}
	if got := srv.messageCount("sess-1"); got != 0 {
		t.Fatalf("expected no stored messages, got %d", got)
	}
}

func TestChatWithoutProvidersReturns503(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hello"}, nil)
	assertStatus(t, resp, http.StatusServiceUnavailable)
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t, serverOptions{}, &stubProvider{name: "p", text: "x"})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "  "}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)
	var body chatBody
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Error != msgBadRequest {
		t.Fatalf("unexpected error message %q", body.Error)
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, serverOptions{}, &stubProvider{name: "p", text: "x"})
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/chat", nil, nil)
	assertStatus(t, resp, http.StatusMethodNotAllowed)
	if allow := resp.Header().Get("Allow"); allow != "POST, OPTIONS" {
		t.Fatalf("unexpected Allow header %q", allow)
	}
	var body chatBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != msgMethodNotAllowed {
		t.Fatalf("unexpected error message %q", body.Error)
	}
}

func TestChatPreflight(t *testing.T) {
	srv := newTestServer(t, serverOptions{allowedOrigins: []string{"https://app.example.com"}}, &stubProvider{name: "p", text: "x"})

	resp := doJSONRequest(t, srv.router, http.MethodOptions, "/api/chat", nil, map[string]string{"Origin": "https://app.example.com"})
	assertStatus(t, resp, http.StatusNoContent)
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, map[string]string{"Origin": "https://evil.example.com"})
	assertStatus(t, resp, http.StatusForbidden)
	var body chatBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != msgOriginDenied {
		t.Fatalf("unexpected error message %q", body.Error)
	}
}

func TestCORSAllowsSameOriginWithOriginHeader(t *testing.T) {
	srv := newTestServer(t, serverOptions{allowedOrigins: []string{"https://partner.example.com"}}, &stubProvider{name: "p", text: "ok"})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "https://app.example.com/api/chat", map[string]any{"message": "hi"},
		map[string]string{"Origin": "https://app.example.com", "X-Session-ID": "same-origin"})
	assertStatus(t, resp, http.StatusOK)

	// same host name on another port is a different origin
	resp = doJSONRequest(t, srv.router, http.MethodPost, "https://app.example.com/api/chat", map[string]any{"message": "hi"},
		map[string]string{"Origin": "https://app.example.com:8443"})
	assertStatus(t, resp, http.StatusForbidden)
}

func TestCORSDevModeAllowsLoopback(t *testing.T) {
	srv := newTestServer(t, serverOptions{devMode: true}, &stubProvider{name: "p", text: "x"})
	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, map[string]string{"Origin": "http://localhost:5173"})
	assertStatus(t, resp, http.StatusOK)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, map[string]string{"Origin": "http://localhost.evil.com"})
	assertStatus(t, resp, http.StatusForbidden)
}

func TestChatRateLimited(t *testing.T) {
	p := &stubProvider{name: "p", text: "ok"}
	srv := newTestServer(t, serverOptions{maxRequests: 2}, p)

	for i := 0; i < 2; i++ {
		resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, sessionHeader)
		assertStatus(t, resp, http.StatusOK)
	}
	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, sessionHeader)
	assertStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	var body chatBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != msgRateLimited || body.Remaining == nil || *body.Remaining != 0 || body.ResetInMs == nil {
		t.Fatalf("unexpected body: %+v", body)
	}
	if p.calls != 2 {
		t.Fatalf("provider should not be called when limited, got %d calls", p.calls)
	}
}

func TestConversationEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{}, &stubProvider{name: "p", text: "أهلاً أحمد"})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "اسمي أحمد وعندي أرق"}, sessionHeader)
	assertStatus(t, resp, http.StatusOK)

	convResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversation", nil, sessionHeader)
	assertStatus(t, convResp, http.StatusOK)
	var convBody struct {
		Conversation *struct {
			Messages []json.RawMessage `json:"messages"`
			Topics   []string          `json:"topics"`
		} `json:"conversation"`
		Summary  string `json:"summary"`
		UserName string `json:"userName"`
	}
	decodeJSON(t, convResp.Body.Bytes(), &convBody)
	if convBody.Conversation == nil || len(convBody.Conversation.Messages) != 2 {
		t.Fatalf("unexpected conversation: %s", convResp.Body.String())
	}
	if convBody.UserName != "أحمد" || !strings.Contains(convBody.Summary, "أحمد") {
		t.Fatalf("unexpected name/summary: %+v", convBody)
	}

	listResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/conversations", nil, sessionHeader)
	assertStatus(t, listResp, http.StatusOK)

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversation", nil, sessionHeader), http.StatusNoContent)
	if got := srv.messageCount("sess-1"); got != 0 {
		t.Fatalf("expected cleared conversation, got %d messages", got)
	}
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/conversations", nil, sessionHeader), http.StatusNoContent)
}

func TestProfileEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{}, &stubProvider{name: "p", text: "ok"})

	metricsResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/health-profile/metrics", map[string]any{
		"weight":        72,
		"bloodPressure": map[string]int{"systolic": 120, "diastolic": 80},
	}, sessionHeader)
	assertStatus(t, metricsResp, http.StatusOK)

	bad := doJSONRequest(t, srv.router, http.MethodPost, "/api/health-profile/metrics", map[string]any{"weight": 15}, sessionHeader)
	assertStatus(t, bad, http.StatusBadRequest)
	var badBody chatBody
	decodeJSON(t, bad.Body.Bytes(), &badBody)
	if badBody.Error != msgInvalidMetric {
		t.Fatalf("unexpected error message %q", badBody.Error)
	}

	exportResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/health-profile/export", nil, sessionHeader)
	assertStatus(t, exportResp, http.StatusOK)
	if cd := exportResp.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
	var exported map[string]any
	decodeJSON(t, exportResp.Body.Bytes(), &exported)
	if exported["weight"] != 72.0 || exported["bloodPressure"] != "120/80" {
		t.Fatalf("unexpected export: %v", exported)
	}

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodDelete, "/api/health-profile", nil, sessionHeader), http.StatusNoContent)
	profileResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/health-profile", nil, sessionHeader)
	var profileBody struct {
		Context string `json:"context"`
	}
	decodeJSON(t, profileResp.Body.Bytes(), &profileBody)
	if profileBody.Context != "" {
		t.Fatalf("expected empty context after clear, got %q", profileBody.Context)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t, serverOptions{}, &stubProvider{name: "primary", text: "ok"})

	resp := doJSONRequest(t, srv.router, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Status    string   `json:"status"`
		Providers []string `json:"providers"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Status != "ok" || len(body.Providers) != 1 || body.Providers[0] != "primary" {
		t.Fatalf("unexpected healthz body: %+v", body)
	}

	assertStatus(t, doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"}, nil), http.StatusOK)
	metricsResp := doJSONRequest(t, srv.router, http.MethodGet, "/metrics", nil, nil)
	assertStatus(t, metricsResp, http.StatusOK)
	if !strings.Contains(metricsResp.Body.String(), `wellness_chat_requests_total{outcome="ok"} 1`) {
		t.Fatalf("expected chat counter in metrics output")
	}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
