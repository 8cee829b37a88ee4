// Package supervisor runs the daemon's long-lived goroutines (ops server,
// config watcher, event logger) under one context with panic recovery and
// restart backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "bonfire/pkg/logx"
)

// Supervisor owns a context shared by every goroutine it starts.
// The first failure is kept and, with WithCancelOnError, cancels the rest.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr error
	errMu    sync.Mutex

	wg sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*Stats
}

// Stats is a best-effort per-name view, for logs and the ops server.
type Stats struct {
	Name     string    `json:"name"`
	Active   int       `json:"active"`
	Started  int       `json:"started"`
	Restarts int       `json:"restarts"`
	Panics   int       `json:"panics"`
	LastErr  string    `json:"last_err,omitempty"`
	LastStop time.Time `json:"last_stop,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) {
		if !log.IsZero() {
			s.log = log
		}
	}
}

// WithCancelOnError cancels the shared context on the first failure.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		stats:  map[string]*Stats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first failure, if any.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

// Snapshot returns per-name stats sorted by name.
func (s *Supervisor) Snapshot() []Stats {
	s.mu.Lock()
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Go runs fn once. A returned error (other than context.Canceled) or a
// panic is recorded as a failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.note(name, func(st *Stats) { st.Started++; st.Active++ })
		s.log.Debug("goroutine started", logx.String("name", name))

		err := s.run(name, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.stopped(name, err)
		if err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// RestartOption configures GoRestart.
type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int // <=0 means unlimited
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts gives up (and records a failure) after n restarts.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// GoRestart runs fn and restarts it after errors or panics, with jittered
// exponential backoff, until the context ends. A nil return stops it.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			s.note(name, func(st *Stats) {
				st.Started++
				st.Active++
				if restarts > 0 {
					st.Restarts++
				}
			})
			startedAt := time.Now()
			err := s.run(name, fn)
			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				s.stopped(name, nil)
				return
			}
			s.stopped(name, err)

			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(fmt.Errorf("%s: %w", name, err))
				return
			}
			// A long healthy run resets the backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := backoff + jitter(backoff)
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// Stop cancels the context and waits for every goroutine (bounded by ctx).
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine returned, then reports Err.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}

// run calls fn, turning a panic into an error.
func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *Stats) { st.Panics++ })
			s.log.Error("goroutine panicked",
				logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) stopped(name string, err error) {
	s.note(name, func(st *Stats) {
		if st.Active > 0 {
			st.Active--
		}
		st.LastStop = time.Now()
		if err != nil {
			st.LastErr = err.Error()
		}
	})
}

func (s *Supervisor) note(name string, fn func(st *Stats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &Stats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() {
		s.errMu.Lock()
		s.firstErr = err
		s.errMu.Unlock()
	})
	if s.cancelOnErr {
		s.cancel()
	}
}

// jitter returns up to 20% of d.
func jitter(d time.Duration) time.Duration {
	j := int64(d) / 5
	if j <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() % (j + 1))
}
