package ratelimit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"keyedstate-gateway/middleware/ratelimit/application"
	"keyedstate-gateway/middleware/ratelimit/domain"
	"keyedstate-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap/zaptest"
)

func newLimiter(t *testing.T, rps float64, burst int) *application.Service {
	t.Helper()
	svc, err := application.NewService(infra.NewStore(infra.NewShardedMap(4)), domain.QuotaFromRPS(rps, burst), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	limiter := newLimiter(t, 0.02, 1)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Limiter:             limiter,
		Log:                 zaptest.NewLogger(t),
		RejectStatus:        http.StatusTooManyRequests,
		AddRateLimitHeaders: true,
	})(next)

	// 1) primeira passa
	r1 := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-RateLimit-Key=10.0.0.1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-RPS"); got != "0.02" {
		t.Fatalf("expected X-RateLimit-RPS=0.02, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Burst"); got != "1" {
		t.Fatalf("expected X-RateLimit-Burst=1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0, got %q", got)
	}

	// 2) segunda deve bloquear (burst=1 e rps bem baixo)
	r2 := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
	r2.RemoteAddr = "10.0.0.1:1234"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "50" {
		t.Fatalf("expected Retry-After=50 (one replenish interval), got %q", got)
	}

	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	limiter := newLimiter(t, 0.02, 1)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Limiter:   limiter,
		KeyHeader: "X-Api-Key",
	})(next)

	// duas chaves diferentes => ambos devem passar (cada chave tem seu próprio estado)
	for _, k := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", k)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", k, w.Code)
		}
	}
	if limiter.Len() != 2 {
		t.Fatalf("expected 2 keys in the store, got %d", limiter.Len())
	}
}

func TestMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := Middleware(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if !called {
		t.Fatalf("expected next handler to be called")
	}
}

type countingObserver struct{ allowed, denied int }

func (o *countingObserver) ObserveDecision(allowed bool) {
	if allowed {
		o.allowed++
		return
	}
	o.denied++
}

type failingStats struct{ calls int }

func (s *failingStats) Record(context.Context, domain.StatsEvent) error {
	s.calls++
	return errors.New("stats down")
}

func TestMiddleware_RecordsMetricsAndStats(t *testing.T) {
	limiter := newLimiter(t, 0.02, 1)
	obs := &countingObserver{}
	mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))

	h := Middleware(Options{
		Limiter: limiter,
		Metrics: obs,
		Stats:   mem,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "http://example/orders", nil)
		r.RemoteAddr = "10.0.0.2:999"
		h.ServeHTTP(httptest.NewRecorder(), r)
	}

	if obs.allowed != 1 || obs.denied != 2 {
		t.Fatalf("unexpected observer counts: %+v", obs)
	}
	got := mem.ByRoute()["POST /orders"]
	if got.Allowed != 1 || got.Denied != 2 {
		t.Fatalf("unexpected route stats: %+v", got)
	}
	if got.Wait <= 0 {
		t.Fatalf("expected accumulated wait for denied requests")
	}
	if mem.ByKey()["10.0.0.2"].Denied != 2 {
		t.Fatalf("expected per-key stats for 10.0.0.2")
	}
}

func TestMiddleware_StatsErrorDoesNotFailRequest(t *testing.T) {
	stats := &failingStats{}
	h := Middleware(Options{
		Limiter: newLimiter(t, 10, 10),
		Stats:   stats,
		Log:     zaptest.NewLogger(t),
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if stats.calls != 1 {
		t.Fatalf("expected stats to be called once, got %d", stats.calls)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		time.Second:             "1",
		2500 * time.Millisecond: "3",
	}
	for d, want := range cases {
		if got := formatInt(retryAfterSeconds(d)); got != want {
			t.Fatalf("retryAfterSeconds(%s)=%s, want %s", d, got, want)
		}
	}
}

func TestMiddleware_CustomRejectStatus(t *testing.T) {
	h := Middleware(Options{
		Limiter:      newLimiter(t, 0.02, 1),
		RejectStatus: http.StatusServiceUnavailable,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		h.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	}
	if last.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", last.Code)
	}
	if !strings.Contains(last.Body.String(), "Service Unavailable") {
		t.Fatalf("unexpected body %q", last.Body.String())
	}
}
