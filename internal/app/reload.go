package app

import (
	"context"
	"errors"

	"bonfire/internal/config"
	logx "bonfire/pkg/logx"
	"bonfire/pkg/systemd"
)

// validateReload rejects reloads that change the task registry so the
// running scheduler never disagrees with its config about which tags exist.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	cur := a.cfgm.Get()
	if cur == nil {
		return nil
	}
	if !sameTags(cur.Scheduler.Tags, cfg.Scheduler.Tags) {
		return errors.New("scheduler.tags cannot change without a restart")
	}
	return nil
}

// applyUpdates applies hot-reloadable sections (logging) and warns about
// the rest.
func (a *App) applyUpdates(ctx context.Context, updates <-chan *config.Config) {
	prev := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			ch := config.SummarizeChange(prev, cfg)
			prev = cfg
			if ch.Empty() {
				continue
			}
			_, _ = systemd.Reloading(a.notify)
			a.logs.Apply(loggingConfig(cfg))
			_, _ = systemd.Ready(a.notify)
			fields := append([]logx.Field{logx.Any("sections", ch.Sections)}, ch.Fields...)
			a.log.Info("config reloaded", fields...)
			if ch.NeedsRestart {
				a.log.Warn("config change takes effect after restart", logx.Any("sections", ch.Sections))
			}
		}
	}
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}
