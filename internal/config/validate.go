package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bonfire/internal/storage"
)

const (
	DefaultNamespace    = "bonfire/tasks"
	DefaultOpsAddr      = "127.0.0.1:9090"
	DefaultStartTimeout = 30 * time.Second
	DefaultOpTimeout    = 10 * time.Second
)

// ApplyDefaults fills omitted fields.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Store.Driver) == "" {
		c.Store.Driver = "memory"
	}
	if strings.TrimSpace(c.Store.Namespace) == "" {
		c.Store.Namespace = DefaultNamespace
	}
	if strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Store.Path) == "" {
			add(fmt.Errorf("store.path is required for driver %q", c.Store.Driver))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(c.Store.DSN) == "" {
			add(errors.New("store.dsn is required for driver postgres"))
		}
	case "redis":
		if strings.TrimSpace(c.Store.Redis.URL) == "" {
			add(errors.New("store.redis.url is required for driver redis"))
		}
	default:
		add(fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if ns := strings.Trim(strings.TrimSpace(c.Store.Namespace), storage.Separator); ns != "" {
		if err := storage.ValidatePath(ns); err != nil {
			add(fmt.Errorf("store.namespace: %w", err))
		}
	}
	_, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout)
	add(err)

	if len(c.Scheduler.Tags) == 0 {
		add(errors.New("scheduler.tags: at least one task tag is required"))
	}
	seen := map[string]bool{}
	for i, tag := range c.Scheduler.Tags {
		if strings.TrimSpace(tag) == "" || strings.TrimSpace(tag) != tag {
			add(fmt.Errorf("scheduler.tags[%d]: invalid tag %q", i, tag))
			continue
		}
		if seen[tag] {
			add(fmt.Errorf("scheduler.tags[%d]: duplicate tag %q", i, tag))
		}
		seen[tag] = true
	}
	if _, err := c.Scheduler.Location(); err != nil {
		add(err)
	}
	_, err = ParseDurationField("scheduler.start_timeout", c.Scheduler.StartTimeout)
	add(err)
	_, err = ParseDurationField("scheduler.op_timeout", c.Scheduler.OpTimeout)
	add(err)
	for i, s := range c.Scheduler.Seeds {
		path := fmt.Sprintf("scheduler.seeds[%d]", i)
		if !seen[s.Tag] {
			add(fmt.Errorf("%s.tag: %q is not in scheduler.tags", path, s.Tag))
		}
		if strings.TrimSpace(s.At) == "" {
			add(fmt.Errorf("%s.at is required", path))
		}
		if s.Key != "" {
			if err := storage.ValidateSegment(s.Key); err != nil {
				add(fmt.Errorf("%s.key: %w", path, err))
			}
		}
	}

	for _, d := range []struct{ path, raw string }{
		{"ops.read_timeout", c.Ops.ReadTimeout},
		{"ops.write_timeout", c.Ops.WriteTimeout},
		{"ops.idle_timeout", c.Ops.IdleTimeout},
	} {
		_, err := ParseDurationField(d.path, d.raw)
		add(err)
	}
	return errors.Join(errs...)
}

// Location resolves the scheduler timezone (Local when empty).
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func (s SchedulerConfig) StartTimeoutOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.start_timeout", s.StartTimeout, DefaultStartTimeout)
	if err != nil {
		return DefaultStartTimeout
	}
	return d
}

// OpTimeoutOrDefault returns 0 when explicitly disabled with "0s".
func (s SchedulerConfig) OpTimeoutOrDefault() time.Duration {
	if strings.TrimSpace(s.OpTimeout) == "" {
		return DefaultOpTimeout
	}
	d, err := ParseDurationField("scheduler.op_timeout", s.OpTimeout)
	if err != nil {
		return DefaultOpTimeout
	}
	return d
}

// StorageConfig converts the store section for storage.Open.
func (s StoreConfig) StorageConfig() storage.Config {
	bt, _ := ParseDurationField("store.busy_timeout", s.BusyTimeout)
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(s.Driver)),
		Path:        strings.TrimSpace(s.Path),
		DSN:         strings.TrimSpace(s.DSN),
		BusyTimeout: bt,
		Redis: storage.RedisConfig{
			URL:    strings.TrimSpace(s.Redis.URL),
			Prefix: strings.TrimSpace(s.Redis.Prefix),
		},
	}
}
