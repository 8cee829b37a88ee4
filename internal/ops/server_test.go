package ops

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bonfire/internal/metrics"
	logx "bonfire/pkg/logx"
)

func get(t *testing.T, h http.Handler, path string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReadyzFollowsProbe(t *testing.T) {
	t.Parallel()
	var ready error = errors.New("recovering")
	s := New(Config{}, Deps{Ready: func() error { return ready }}, logx.Nop())
	h := s.Handler()

	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before ready: code=%d", rec.Code)
	}
	ready = nil
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("after ready: code=%d", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsAndStatus(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.SetPending(7)
	s := New(Config{}, Deps{
		Metrics: m.Handler(),
		Status:  func() any { return map[string]int{"pending": 7} },
	}, logx.Nop())
	h := s.Handler()

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bonfire_pending_tasks 7") {
		t.Fatalf("metrics: %d\n%s", rec.Code, rec.Body.String())
	}
	rec = get(t, h, "/status")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"pending": 7`) {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{Token: "s3cret"}, Deps{}, logx.Nop()).Handler()

	tests := []struct {
		name string
		path string
		hdr  []string
		want int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"wrong bearer", "/healthz", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/healthz", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"wrong query", "/healthz?token=x", []string{"Authorization", "Bearer s3cret"}, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		if rec := get(t, h, tc.path, tc.hdr...); rec.Code != tc.want {
			t.Errorf("%s: code=%d want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	off := New(Config{}, Deps{}, logx.Nop()).Handler()
	if rec := get(t, off, "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled: code=%d", rec.Code)
	}
	on := New(Config{Pprof: true}, Deps{}, logx.Nop()).Handler()
	if rec := get(t, on, "/debug/pprof/"); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled: code=%d", rec.Code)
	}
}

func TestRunRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, Deps{}, logx.Nop())
	if err := s.Run(context.Background()); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("err=%v want ErrInsecureBind", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(Config{}, Deps{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body=%q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:9090":     true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.5:9090":  false,
		"garbage":        false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("%s: got %v want %v", addr, got, want)
		}
	}
}
