package config

import (
	"reflect"
	"strings"

	logx "bonfire/pkg/logx"
)

// Change summarizes the difference between two configs.
type Change struct {
	// Sections lists the top-level sections that changed.
	Sections []string
	// Fields are safe to log: secrets (DSN, tokens, URLs with passwords)
	// are never included.
	Fields []logx.Field
	// NeedsRestart is set when a changed section is only read at startup.
	// Only logging is applied live.
	NeedsRestart bool
}

// SummarizeChange compares oldCfg and newCfg section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Store, newCfg.Store) {
		ch.Sections = append(ch.Sections, "store")
		ch.NeedsRestart = true
		ch.Fields = append(ch.Fields,
			logx.String("store.driver", newCfg.Store.Driver),
			logx.String("store.namespace", newCfg.Store.Namespace),
			logx.Bool("store.dsn_set", strings.TrimSpace(newCfg.Store.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		ch.Sections = append(ch.Sections, "scheduler")
		ch.NeedsRestart = true
		ch.Fields = append(ch.Fields,
			logx.Int("scheduler.tags", len(newCfg.Scheduler.Tags)),
			logx.Int("scheduler.seeds", len(newCfg.Scheduler.Seeds)),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		ch.Sections = append(ch.Sections, "ops")
		ch.NeedsRestart = true
		ch.Fields = append(ch.Fields,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}
	return ch
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool { return len(c.Sections) == 0 }
