package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/nghyane/llm-relay/internal/config"
	"github.com/nghyane/llm-relay/internal/gateway"
	"github.com/nghyane/llm-relay/internal/quota"
	"github.com/nghyane/llm-relay/internal/ratelimit"
	"github.com/nghyane/llm-relay/internal/registry"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// recordingGate counts gate calls and optionally denies.
type recordingGate struct {
	denyWith error
	before   atomic.Int32
	after    atomic.Int32
}

func (g *recordingGate) BeforeRequest(ctx context.Context, callerID, feature string) error {
	g.before.Add(1)
	return g.denyWith
}

func (g *recordingGate) AfterSuccess(ctx context.Context, callerID, feature string) error {
	g.after.Add(1)
	return nil
}

type serverFixture struct {
	handler http.Handler
	gate    *recordingGate
}

func newFixture(t *testing.T, creds registry.StaticCredentials, endpoints map[registry.Provider]string, rateLimit int) *serverFixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	gate := &recordingGate{}
	orch := gateway.NewOrchestrator(creds, "", gateway.WithEndpointResolver(
		func(p registry.Provider, accountID string) string {
			if u, ok := endpoints[p]; ok {
				return u
			}
			return "http://127.0.0.1:0"
		}))
	limiter := ratelimit.NewLimiter(rateLimit)
	srv := NewServer(cfg, limiter, gate, orch, creds)
	return &serverFixture{handler: srv.Handler(), gate: gate}
}

func postChat(handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestChatCompletionFallbackSubstitutesModel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
	}))
	defer upstream.Close()

	// Only a fallback provider is credentialed, not gpt-4o-mini's owner.
	f := newFixture(t, registry.StaticCredentials{registry.ProviderCerebras: "key"},
		map[registry.Provider]string{registry.ProviderCerebras: upstream.URL}, 100)

	w := postChat(f.handler, `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Provider"); got != "cerebras" {
		t.Errorf("X-Provider = %q", got)
	}
	if got := w.Header().Get("X-Model"); got != "llama-3.3-70b" {
		t.Errorf("X-Model = %q, want the fallback provider default", got)
	}
}

func TestChatCompletionStreamUnsupportedProvider(t *testing.T) {
	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderCohere: "key"},
		map[registry.Provider]string{registry.ProviderCohere: upstream.URL}, 100)

	w := postChat(f.handler, `{"model":"command-r","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "error.type").String(); got != "invalid_request_error" {
		t.Errorf("error type = %q", got)
	}
	if upstreamCalls.Load() != 0 {
		t.Error("upstream called for an unsupportable streaming request")
	}
}

func TestChatCompletionStreamNoCapableCandidate(t *testing.T) {
	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
	}))
	defer upstream.Close()

	// gpt-4o-mini's owner streams but has no credential; the only
	// credentialed provider cannot stream.
	f := newFixture(t, registry.StaticCredentials{registry.ProviderCohere: "key"},
		map[registry.Provider]string{registry.ProviderCohere: upstream.URL}, 100)

	w := postChat(f.handler, `{"model":"gpt-4o-mini","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "error.type").String(); got != "invalid_request_error" {
		t.Errorf("error type = %q", got)
	}
	if upstreamCalls.Load() != 0 {
		t.Error("non-streaming provider called for a streaming request")
	}
}

func TestChatCompletionNoProvidersConfigured(t *testing.T) {
	f := newFixture(t, registry.StaticCredentials{}, nil, 100)

	w := postChat(f.handler, `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "error.type").String(); got != "server_error" {
		t.Errorf("error type = %q", got)
	}
}

func TestChatCompletionValidation(t *testing.T) {
	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"}, nil, 100)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"model": `},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"gpt-4o-mini","messages":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(f.handler, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := gjson.Get(w.Body.String(), "error.type").String(); got != "invalid_request_error" {
				t.Errorf("error type = %q", got)
			}
			if gjson.Get(w.Body.String(), "error.message").String() == "" {
				t.Error("error message empty")
			}
		})
	}
}

func TestChatCompletionRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"},
		map[registry.Provider]string{registry.ProviderGroq: upstream.URL}, 1)

	body := `{"model":"llama-3.3-70b-versatile","messages":[{"role":"user","content":"hi"}]}`
	headers := map[string]string{"X-Real-IP": "192.0.2.1"}

	if w := postChat(f.handler, body, headers); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w := postChat(f.handler, body, headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "error.type").String(); got != "rate_limit_error" {
		t.Errorf("error type = %q", got)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("rate limit headers missing: %v", w.Header())
	}

	// A different client is unaffected.
	if w := postChat(f.handler, body, map[string]string{"X-Real-IP": "192.0.2.2"}); w.Code != http.StatusOK {
		t.Errorf("other client status = %d", w.Code)
	}
}

func TestChatCompletionQuotaExceeded(t *testing.T) {
	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"},
		map[registry.Provider]string{registry.ProviderGroq: upstream.URL}, 100)
	f.gate.denyWith = &quota.ExceededError{Feature: quota.FeatureQuickChat, Limit: 8}

	body := `{"model":"llama-3.3-70b-versatile","messages":[{"role":"user","content":"hi"}]}`
	headers := map[string]string{"X-Relay-Caller": "user-1", "X-Relay-Feature": quota.FeatureQuickChat}

	w := postChat(f.handler, body, headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "error.type").String(); got != "quota_exceeded_error" {
		t.Errorf("error type = %q", got)
	}
	if !strings.Contains(gjson.Get(w.Body.String(), "error.message").String(), "upgrade") {
		t.Error("quota denial missing upgrade signal")
	}
	if upstreamCalls.Load() != 0 {
		t.Error("upstream called despite quota denial")
	}

	// Callers on their own keys bypass the gate.
	headers["X-Relay-Byok"] = "1"
	if w := postChat(f.handler, body, headers); w.Code != http.StatusOK {
		t.Errorf("byok request status = %d", w.Code)
	}
}

func TestChatCompletionMetersOnlySuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"},
		map[registry.Provider]string{registry.ProviderGroq: upstream.URL}, 100)

	headers := map[string]string{"X-Relay-Caller": "user-1", "X-Relay-Feature": quota.FeatureTutor}
	if w := postChat(f.handler, `{"model":"llama-3.3-70b-versatile","messages":[{"role":"user","content":"hi"}]}`, headers); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.gate.after.Load() != 1 {
		t.Errorf("AfterSuccess calls = %d, want 1", f.gate.after.Load())
	}

	// A validation failure must not meter.
	postChat(f.handler, `{"model":"","messages":[]}`, headers)
	if f.gate.after.Load() != 1 {
		t.Errorf("AfterSuccess calls = %d after failed request, want 1", f.gate.after.Load())
	}
}

func TestChatCompletionAllProvidersFailing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"},
		map[registry.Provider]string{registry.ProviderGroq: upstream.URL}, 100)

	w := postChat(f.handler, `{"model":"llama-3.3-70b-versatile","messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "error.type").String(); got != "upstream_error" {
		t.Errorf("error type = %q", got)
	}
	if !strings.Contains(gjson.Get(w.Body.String(), "error.message").String(), "503") {
		t.Error("aggregate error does not name the last failure")
	}
}

func TestChatCompletionTerminalUpstreamPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"unknown parameter: frobnicate","code":"bad_param"}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"},
		map[registry.Provider]string{registry.ProviderGroq: upstream.URL}, 100)

	w := postChat(f.handler, `{"model":"llama-3.3-70b-versatile","messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	// The provider's own diagnostic passes through untouched.
	if !strings.Contains(w.Body.String(), "frobnicate") {
		t.Errorf("body = %s, want provider diagnostic", w.Body.String())
	}
	if got := w.Header().Get("X-Provider"); got != "groq" {
		t.Errorf("X-Provider = %q", got)
	}
	if f.gate.after.Load() != 0 {
		t.Error("terminal failure was metered")
	}
}

func TestChatCompletionStreamPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"id\":\"chatcmpl-1\"}\n\ndata: [DONE]\n\n"))
	}))
	defer upstream.Close()

	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"},
		map[registry.Provider]string{registry.ProviderGroq: upstream.URL}, 100)

	w := postChat(f.handler, `{"model":"llama-3.3-70b-versatile","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(w.Body.String(), "data: [DONE]") {
		t.Errorf("stream body = %q", w.Body.String())
	}
}

func TestModelsEndpoint(t *testing.T) {
	f := newFixture(t, registry.StaticCredentials{}, nil, 100)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if got := gjson.Get(body, "object").String(); got != "list" {
		t.Errorf("object = %q", got)
	}
	data := gjson.Get(body, "data").Array()
	if len(data) == 0 {
		t.Fatal("empty model list")
	}
	found := false
	for _, m := range data {
		if m.Get("id").String() == "gpt-4o-mini" {
			found = true
			if got := m.Get("owned_by").String(); got != "openrouter" {
				t.Errorf("gpt-4o-mini owned_by = %q", got)
			}
		}
	}
	if !found {
		t.Error("gpt-4o-mini missing from model list")
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, registry.StaticCredentials{registry.ProviderGroq: "key"}, nil, 100)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := gjson.Get(w.Body.String(), "providers").Int(); got != 1 {
		t.Errorf("providers = %d, want 1", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, registry.StaticCredentials{}, nil, 100)

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
