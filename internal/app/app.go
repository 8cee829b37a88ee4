// Package app wires the bonfire daemon together: config, logging, the
// durable store, the scheduler, seeds and the ops server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bonfire/internal/config"
	"bonfire/internal/eventbus"
	"bonfire/internal/metrics"
	"bonfire/internal/ops"
	"bonfire/internal/redundancy"
	"bonfire/internal/runtime/supervisor"
	"bonfire/internal/scheduler"
	"bonfire/internal/storage"
	"bonfire/internal/task"
	"bonfire/internal/timer"
	logx "bonfire/pkg/logx"
	"bonfire/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	metrics *metrics.Metrics
	store   storage.Store
	red     *redundancy.Service
	sched   *scheduler.Scheduler
	sup     *supervisor.Supervisor

	handler scheduler.CompletionHandler
	clock   timer.Clock
	notify  systemd.NotifyFunc
}

type Option func(*App)

// WithHandler sets the completion handler. The default logs each task.
func WithHandler(h scheduler.CompletionHandler) Option {
	return func(a *App) {
		if h != nil {
			a.handler = h
		}
	}
}

// WithClock replaces the wall clock (tests).
func WithClock(c timer.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// New loads the config at cfgPath and builds every component. Nothing
// runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(cfg))
	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		metrics: metrics.New(),
		clock:   timer.Real(),
		notify:  systemd.Notify,
	}
	a.handler = a.logDelivery
	for _, o := range opts {
		o(a)
	}

	store, red, err := OpenStore(cfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.store, a.red = store, red

	sched, err := scheduler.New(red, a.handler,
		scheduler.WithLogger(log),
		scheduler.WithClock(a.clock),
		scheduler.WithBus(a.bus),
		scheduler.WithMetrics(a.metrics),
	)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	a.sched = sched
	return a, nil
}

// OpenStore opens the configured store and the redundancy layer over it.
// The CLI inspection commands use it without a scheduler.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, *redundancy.Service, error) {
	reg, err := Registry(cfg)
	if err != nil {
		return nil, nil, err
	}
	sc := cfg.Store.StorageConfig()
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	red, err := redundancy.New(store, cfg.Store.Namespace, reg, log)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	log.Info("store opened", logx.String("driver", sc.Driver), logx.String("namespace", red.Namespace()))
	return store, red, nil
}

// Registry builds the task registry from scheduler.tags.
func Registry(cfg *config.Config) (*task.Registry, error) {
	kinds := make([]task.Kind, 0, len(cfg.Scheduler.Tags))
	for _, tag := range cfg.Scheduler.Tags {
		kinds = append(kinds, task.Kind{Tag: tag})
	}
	return task.NewRegistry(kinds...)
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Metrics() *metrics.Metrics       { return a.metrics }
func (a *App) Logger() logx.Logger             { return a.log }

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs recovery, schedules seeds and starts background services.
// A recovery failure is returned and nothing is left running.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// Subscribe before recovery so overdue deliveries show up in the log.
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go("events", func(c context.Context) error {
		defer unsub()
		a.logEvents(c, events)
		return nil
	})

	if a.cfg.Ops.Enabled {
		srv, err := a.opsServer(a.cfg.Ops)
		if err != nil {
			a.sup.Cancel()
			return err
		}
		// Ops is optional; a broken listener must not take the scheduler down.
		a.sup.GoRestart("ops", srv.Run, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	startCtx, cancel := context.WithTimeout(ctx, a.cfg.Scheduler.StartTimeoutOrDefault())
	err := a.sched.Start(startCtx)
	cancel()
	if err != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(context.Background())
		return err
	}

	if err := a.seed(ctx); err != nil {
		a.log.Warn("seeding incomplete", logx.Err(err))
	}

	if sent, err := systemd.Ready(a.notify); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	if every, err := systemd.WatchdogInterval(); err != nil {
		a.log.Warn("watchdog config invalid", logx.Err(err))
	} else if every > 0 {
		a.sup.Go("watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, a.notify, every, a.ready)
		})
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)
	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config.apply", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		a.applyUpdates(c, updates)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.log.Info("bonfire started", logx.Int("pending", a.sched.PendingCount()))
	return nil
}

// Stop stops timers, background goroutines and closes the store.
// Stored tasks stay for the next start.
func (a *App) Stop(ctx context.Context) error {
	if _, err := systemd.Stopping(a.notify); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	var errs []error
	if err := a.sched.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	a.log.Info("bonfire stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) opsServer(oc config.OpsConfig) (*ops.Server, error) {
	rt, err := config.ParseDurationField("ops.read_timeout", oc.ReadTimeout)
	if err != nil {
		return nil, err
	}
	wt, err := config.ParseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return nil, err
	}
	it, err := config.ParseDurationField("ops.idle_timeout", oc.IdleTimeout)
	if err != nil {
		return nil, err
	}
	oscfg := ops.Config{
		Addr:                 oc.Addr,
		Token:                oc.Token,
		AllowInsecure:        oc.AllowInsecure,
		Pprof:                oc.Pprof,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: oc.MutexProfileFraction,
		BlockProfileRate:     oc.BlockProfileRate,
	}
	if err := ops.CheckBind(oscfg); err != nil {
		return nil, err
	}
	return ops.New(oscfg, ops.Deps{
		Ready:   a.ready,
		Metrics: a.metrics.Handler(),
		Status:  a.status,
	}, a.log), nil
}

func (a *App) ready() error {
	select {
	case <-a.sched.Ready():
		return nil
	default:
		return scheduler.ErrNotReady
	}
}

type status struct {
	Ready      bool               `json:"ready"`
	Pending    int                `json:"pending"`
	Driver     string             `json:"driver"`
	Namespace  string             `json:"namespace"`
	Goroutines []supervisor.Stats `json:"goroutines"`
}

func (a *App) status() any {
	st := status{
		Ready:     a.ready() == nil,
		Pending:   a.sched.PendingCount(),
		Driver:    a.cfg.Store.Driver,
		Namespace: a.red.Namespace(),
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}

// logDelivery is the default completion handler.
func (a *App) logDelivery(_ context.Context, key string, t task.Task) {
	fields := []logx.Field{
		logx.String("key", key),
		logx.String("tag", t.Tag()),
		logx.Time("scheduled_at", t.ScheduledAt()),
	}
	if t.HasPayload() {
		fields = append(fields, logx.String("payload", string(t.Payload())))
	}
	a.log.Info("task due", fields...)
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			te, _ := e.Data.(eventbus.TaskEvent)
			a.log.Debug("task event",
				logx.String("type", e.Type),
				logx.String("key", te.Key),
				logx.String("tag", te.Tag),
				logx.Time("scheduled_at", te.ScheduledAt))
		}
	}
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
