package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bonfire/internal/config"
	"bonfire/internal/scheduler"
	"bonfire/internal/task"
	logx "bonfire/pkg/logx"

	"github.com/google/uuid"
)

// seedNamespace scopes the name-based UUIDs given to key-less seeds.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bonfire:seed"))

// SeedKey returns s.Key, or a stable key derived from the tag and the
// schedule string, so a restart maps the seed onto the same record.
func SeedKey(s config.SeedConfig) string {
	if s.Key != "" {
		return s.Key
	}
	return uuid.NewSHA1(seedNamespace, []byte(s.Tag+"\x00"+s.At)).String()
}

// SeedTasks resolves the configured seeds relative to now, in the
// scheduler timezone. Seeds that fail to resolve are reported and skipped.
func SeedTasks(sc config.SchedulerConfig, now time.Time) ([]task.Task, error) {
	loc, err := sc.Location()
	if err != nil {
		return nil, err
	}
	var errs []error
	out := make([]task.Task, 0, len(sc.Seeds))
	for i, s := range sc.Seeds {
		key := SeedKey(s)
		at, err := task.ResolveAt(s.At, now, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %d (%s): %w", i, key, err))
			continue
		}
		var opts []task.Option
		if len(s.Payload) > 0 {
			opts = append(opts, task.WithPayload(s.Payload))
		}
		t, err := task.New(key, s.Tag, at, opts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %d (%s): %w", i, key, err))
			continue
		}
		out = append(out, t)
	}
	return out, errors.Join(errs...)
}

// seed schedules every configured seed. Scheduling is idempotent per key,
// so seeds already pending from a previous run are left alone.
func (a *App) seed(ctx context.Context) error {
	if len(a.cfg.Scheduler.Seeds) == 0 {
		return nil
	}
	tasks, err := SeedTasks(a.cfg.Scheduler, a.clock.Now())
	errs := []error{err}
	timeout := a.cfg.Scheduler.OpTimeoutOrDefault()

	for _, t := range tasks {
		opCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		got, err := a.sched.Schedule(opCtx, t)
		cancel()

		fields := []logx.Field{logx.String("key", t.Key()), logx.String("tag", t.Tag()), logx.Time("at", t.ScheduledAt())}
		switch {
		case errors.Is(err, scheduler.ErrScheduledInPast):
			a.log.Warn("seed skipped: instant already passed", fields...)
		case err != nil:
			errs = append(errs, fmt.Errorf("seed %s: %w", t.Key(), err))
		case !got.Equal(t):
			a.log.Debug("seed already scheduled", append(fields, logx.Time("pending_at", got.ScheduledAt()))...)
		default:
			a.log.Info("seed scheduled", fields...)
		}
	}
	return errors.Join(errs...)
}
