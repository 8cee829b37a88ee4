package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"bonfire/internal/eventbus"
	"bonfire/internal/metrics"
	"bonfire/internal/redundancy"
	"bonfire/internal/task"
	"bonfire/internal/timer"
	logx "bonfire/pkg/logx"
)

var (
	ErrScheduledInPast = errors.New("scheduler: scheduled time is not in the future")
	ErrClosed          = errors.New("scheduler: closed")
	ErrNotReady        = errors.New("scheduler: not ready")
)

// Redundancy is the durable side of the scheduler. *redundancy.Service
// implements it.
type Redundancy interface {
	GetAll(ctx context.Context) (redundancy.Batch, error)
	Fetch(ctx context.Context, key string) (task.Task, bool, error)
	Commit(ctx context.Context, t task.Task) error
	Remove(ctx context.Context, key string) error
}

// CompletionHandler receives a task once its instant has passed. It is
// called at most once per stored record, before the record is removed.
type CompletionHandler func(ctx context.Context, key string, t task.Task)

type armed struct {
	handle timer.Handle
	ver    uint64
	at     time.Time
}

type Scheduler struct {
	store   Redundancy
	handler CompletionHandler
	clock   timer.Clock
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	warn    *warner

	keys keyedMutex

	mu     sync.Mutex
	timers map[string]*armed
	seq    uint64
	closed bool

	// ctx is handed to fire callbacks; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	startErr  error
	started   chan struct{}
	ready     chan struct{}
}

// New builds a Scheduler. It does not touch the store until Start.
func New(store Redundancy, handler CompletionHandler, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("scheduler: redundancy store is required")
	}
	if handler == nil {
		return nil, errors.New("scheduler: completion handler is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:   store,
		handler: handler,
		clock:   timer.Real(),
		log:     logx.Nop(),
		bus:     eventbus.Nop{},
		timers:  map[string]*armed{},
		ctx:     ctx,
		cancel:  cancel,
		started: make(chan struct{}),
		ready:   make(chan struct{}),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	s.log = s.log.With(logx.String("comp", "scheduler"))
	s.warn = newWarner(s.log)
	return s, nil
}

// Open is New followed by Start. The scheduler is closed if recovery fails.
func Open(ctx context.Context, store Redundancy, handler CompletionHandler, opts ...Option) (*Scheduler, error) {
	s, err := New(store, handler, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return s, nil
}

// Start recovers every stored task. Tasks already due are delivered and
// removed before Start returns; future tasks get a timer. A store failure
// aborts recovery and leaves the scheduler not ready. Later calls return
// the first result.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.startErr = s.recoverAll(ctx)
		if s.startErr == nil {
			close(s.ready)
		}
		close(s.started)
	})
	return s.startErr
}

// Ready is closed once Start has completed successfully.
func (s *Scheduler) Ready() <-chan struct{} { return s.ready }

// WaitReady blocks until Start finishes. It returns the Start error, or
// ErrNotReady when ctx ends first.
func (s *Scheduler) WaitReady(ctx context.Context) error {
	select {
	case <-s.started:
		return s.startErr
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
}

func (s *Scheduler) recoverAll(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	start := s.clock.Now()
	batch, err := s.store.GetAll(ctx)
	if err != nil {
		s.metrics.StoreError("get_all")
		return fmt.Errorf("scheduler: recover: %w", err)
	}
	for _, u := range batch.Unknown {
		s.log.Warn("skipping unrecognized task record",
			logx.String("key", u.Key), logx.String("tag", u.Tag), logx.Err(u.Err))
	}
	s.metrics.Unknown(len(batch.Unknown))

	overdue, armedN := 0, 0
	for _, t := range batch.Tasks {
		due, err := s.recoverOne(ctx, t)
		if err != nil {
			return err
		}
		if due {
			overdue++
		} else {
			armedN++
		}
	}
	s.log.Info("recovery complete",
		logx.Int("armed", armedN),
		logx.Int("overdue", overdue),
		logx.Int("unknown", len(batch.Unknown)),
		logx.Duration("took", s.clock.Now().Sub(start)))
	return nil
}

func (s *Scheduler) recoverOne(ctx context.Context, t task.Task) (due bool, err error) {
	key := t.Key()
	unlock := s.keys.Lock(key)
	defer unlock()

	now := s.clock.Now()
	if t.Due(now) {
		s.deliver(ctx, key, t)
		s.metrics.Overdue(now.Sub(t.ScheduledAt()))
		s.publish(eventbus.TaskOverdue, t)
		if err := s.store.Remove(ctx, key); err != nil {
			s.metrics.StoreError("remove")
			return true, fmt.Errorf("scheduler: recover %q: %w", key, err)
		}
		return true, nil
	}
	if s.isArmed(key) {
		return false, nil
	}
	if _, err := s.arm(t); err != nil {
		return false, err
	}
	s.metrics.Recovered()
	s.publish(eventbus.TaskRecovered, t)
	return false, nil
}

// Schedule registers t. It is idempotent per key: if a record already
// exists the stored task governs and nothing is rewritten.
//
// The returned task is the one that will be delivered.
func (s *Scheduler) Schedule(ctx context.Context, t task.Task) (task.Task, error) {
	if t.IsZero() {
		return task.Task{}, fmt.Errorf("scheduler: schedule: %w", task.ErrInvalidKey)
	}
	if s.isClosed() {
		return task.Task{}, ErrClosed
	}
	key := t.Key()
	if now := s.clock.Now(); t.Due(now) {
		return task.Task{}, fmt.Errorf("%w: %q at %s (now %s)", ErrScheduledInPast, key,
			t.ScheduledAt().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}

	unlock := s.keys.Lock(key)
	defer unlock()

	existing, found, err := s.store.Fetch(ctx, key)
	if err != nil {
		s.metrics.StoreError("fetch")
		return task.Task{}, fmt.Errorf("scheduler: schedule %q: %w", key, err)
	}

	if found {
		if s.isArmed(key) {
			s.metrics.Scheduled(metrics.ScheduleDuplicate)
			s.log.Debug("task already scheduled", logx.String("key", key))
			return existing, nil
		}
		// Stored by an earlier run but not armed here.
		if _, err := s.arm(t); err != nil {
			return task.Task{}, err
		}
		s.metrics.Scheduled(metrics.ScheduleLocal)
		s.publish(eventbus.TaskScheduled, t)
		return t, nil
	}

	ver, err := s.arm(t)
	if err != nil {
		return task.Task{}, err
	}
	if err := s.store.Commit(ctx, t); err != nil {
		s.disarm(key, ver)
		s.metrics.StoreError("commit")
		return task.Task{}, fmt.Errorf("scheduler: schedule %q: %w", key, err)
	}
	s.metrics.Scheduled(metrics.ScheduleNew)
	s.publish(eventbus.TaskScheduled, t)
	s.log.Debug("task scheduled",
		logx.String("key", key), logx.String("tag", t.Tag()), logx.Time("at", t.ScheduledAt()))
	return t, nil
}

// Cancel drops a pending task. Keys without a local timer are ignored,
// including every key once the scheduler is closed. If the durable removal
// fails the timer stays armed.
func (s *Scheduler) Cancel(ctx context.Context, key string) error {
	unlock := s.keys.Lock(key)
	defer unlock()

	s.mu.Lock()
	a, ok := s.timers[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.store.Remove(ctx, key); err != nil {
		s.metrics.StoreError("remove")
		return fmt.Errorf("scheduler: cancel %q: %w", key, err)
	}
	s.disarm(key, a.ver)
	s.metrics.Canceled()
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TaskCanceled,
		Time: s.clock.Now(),
		Data: eventbus.TaskEvent{Key: key, ScheduledAt: a.at},
	})
	s.log.Debug("task canceled", logx.String("key", key))
	return nil
}

// Get reads the durable record for key.
func (s *Scheduler) Get(ctx context.Context, key string) (task.Task, bool, error) {
	if s.isClosed() {
		return task.Task{}, false, ErrClosed
	}
	t, ok, err := s.store.Fetch(ctx, key)
	if err != nil {
		s.metrics.StoreError("fetch")
		return task.Task{}, false, fmt.Errorf("scheduler: get %q: %w", key, err)
	}
	return t, ok, nil
}

// PendingCount returns the number of locally armed timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops every timer and waits (bounded by ctx) for callbacks that
// are already running. Stored records stay put for the next Start.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, a := range s.timers {
		a.handle.Stop()
	}
	stopped := len(s.timers)
	s.timers = map[string]*armed{}
	s.mu.Unlock()

	s.metrics.SetPending(0)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler closed", logx.Int("timers_stopped", stopped))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: close: %w", ctx.Err())
	}
}

// fire runs when the timer armed with ver for key elapses.
func (s *Scheduler) fire(key string, ver uint64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	unlock := s.keys.Lock(key)
	defer unlock()

	// Replaced, canceled or closed while waiting for the key.
	s.mu.Lock()
	a, ok := s.timers[key]
	if !ok || a.ver != ver {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	n := len(s.timers)
	s.mu.Unlock()
	s.metrics.SetPending(n)

	ctx := s.ctx
	t, found, err := s.store.Fetch(ctx, key)
	if err != nil {
		s.metrics.StoreError("fetch")
		s.warn.warn("fetch", key, err)
		return
	}
	if !found {
		s.log.Debug("fired task no longer stored or not decodable", logx.String("key", key))
		return
	}

	s.deliver(ctx, key, t)
	s.metrics.Fired(s.clock.Now().Sub(t.ScheduledAt()))
	s.publish(eventbus.TaskFired, t)

	if err := s.store.Remove(ctx, key); err != nil {
		s.metrics.StoreError("remove")
		s.warn.warn("remove", key, err)
	}
}

// deliver calls the handler, containing panics.
func (s *Scheduler) deliver(ctx context.Context, key string, t task.Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("completion handler panic",
				logx.String("key", key),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	s.handler(ctx, key, t)
}

// arm installs a timer for t, replacing any previous one for the key.
// Callers hold the key lock.
func (s *Scheduler) arm(t task.Task) (uint64, error) {
	key := t.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if old := s.timers[key]; old != nil {
		old.handle.Stop()
	}
	s.seq++
	ver := s.seq
	a := &armed{ver: ver, at: t.ScheduledAt()}
	a.handle = timer.At(s.clock, a.at, func() { s.fire(key, ver) })
	s.timers[key] = a
	s.metrics.SetPending(len(s.timers))
	return ver, nil
}

// disarm stops and forgets the timer for key if it is still version ver.
func (s *Scheduler) disarm(key string, ver uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.timers[key]
	if !ok || a.ver != ver {
		return
	}
	a.handle.Stop()
	delete(s.timers, key)
	s.metrics.SetPending(len(s.timers))
}

func (s *Scheduler) isArmed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) publish(typ string, t task.Task) {
	s.bus.Publish(eventbus.Event{
		Type: typ,
		Time: s.clock.Now(),
		Data: eventbus.TaskEvent{Key: t.Key(), Tag: t.Tag(), ScheduledAt: t.ScheduledAt()},
	})
}
