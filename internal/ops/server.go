// Package ops serves the daemon's operational HTTP endpoints:
//
//	/healthz        liveness
//	/readyz         200 once recovery has finished, 503 before
//	/metrics        Prometheus exposition
//	/status         JSON status (pending tasks, goroutines)
//	/debug/pprof/   runtime profiles (when enabled)
//
// Prefer binding to localhost. A non-loopback address requires a token
// unless AllowInsecure is set.
package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"time"

	logx "bonfire/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration // 0 keeps /debug/pprof/profile usable
	IdleTimeout  time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
}

// Deps are the probes the server reports on. Nil fields disable the
// matching endpoint (or, for Ready, report always ready).
type Deps struct {
	Ready   func() error
	Metrics http.Handler
	Status  func() any
}

var ErrInsecureBind = errors.New("ops: non-loopback addr requires token or allow_insecure")

type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:9090"
	}
	return &Server{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "ops"))}
}

// Handler builds the mux. Every route requires the token when one is set.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(s.cfg.Token, h) }

	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/readyz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		if s.deps.Ready != nil {
			if err := s.deps.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ready"))
	}))
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", wrap(s.deps.Metrics.ServeHTTP))
	}
	if s.deps.Status != nil {
		mux.HandleFunc("/status", wrap(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(s.deps.Status())
		}))
	}
	if s.cfg.Pprof {
		mux.HandleFunc(pprofPrefix, wrap(hpprof.Index))
		mux.HandleFunc(pprofPrefix+"cmdline", wrap(hpprof.Cmdline))
		mux.HandleFunc(pprofPrefix+"profile", wrap(hpprof.Profile))
		mux.HandleFunc(pprofPrefix+"symbol", wrap(hpprof.Symbol))
		mux.HandleFunc(pprofPrefix+"trace", wrap(hpprof.Trace))
	}
	return mux
}

// Run listens and serves until ctx ends. It is meant to run under a
// supervisor restart loop.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg
	if err := CheckBind(cfg); err != nil {
		s.log.Error("ops server refused to start", logx.String("addr", cfg.Addr))
		return err
	}
	if cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
		s.log.Warn("ops server running without token on non-loopback addr (insecure)", logx.String("addr", cfg.Addr))
	}
	if cfg.Pprof {
		applyRuntimeRates(cfg)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", s.cfg.Pprof),
		logx.Bool("token_set", s.cfg.Token != ""))
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		<-stopped
		s.log.Info("ops server stopped")
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

// CheckBind refuses a non-loopback address without a token unless
// AllowInsecure is set.
func CheckBind(cfg Config) error {
	if cfg.Token == "" && !cfg.AllowInsecure && !isLoopbackAddr(cfg.Addr) {
		return ErrInsecureBind
	}
	return nil
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token>.
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func applyRuntimeRates(cfg Config) {
	// 0 keeps the Go default.
	if cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
