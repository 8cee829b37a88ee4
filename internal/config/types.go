package config

import "encoding/json"

// Config is the daemon configuration file (JSON or YAML).
//
// Secrets and deployment-specific values can be overridden from the
// environment (BONFIRE_*); see ApplyEnv.
type Config struct {
	Logging   LoggingConfig   `json:"logging" envPrefix:"LOG_"`
	Store     StoreConfig     `json:"store" envPrefix:"STORE_"`
	Scheduler SchedulerConfig `json:"scheduler" envPrefix:"SCHEDULER_"`
	Ops       OpsConfig       `json:"ops,omitempty" envPrefix:"OPS_"`
}

type LoggingConfig struct {
	Level   string      `json:"level" env:"LEVEL"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty" env:"JSON"` // raw JSON lines on the console
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the durable store.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./data/bonfire.db", "namespace": "bonfire/tasks" }
type StoreConfig struct {
	// Driver: memory | file | sqlite | postgres | redis
	Driver string `json:"driver" env:"DRIVER"`
	Path   string `json:"path,omitempty" env:"PATH"`
	// Namespace is the store path holding task records.
	Namespace string `json:"namespace,omitempty" env:"NAMESPACE"`
	// DSN is the postgres connection string (do not log).
	DSN         string      `json:"dsn,omitempty" env:"DSN"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Redis       RedisConfig `json:"redis,omitempty" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	URL    string `json:"url,omitempty" env:"URL"` // redis://[:password@]host:port/db
	Prefix string `json:"prefix,omitempty" env:"PREFIX"`
}

// SchedulerConfig controls the scheduler daemon.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// Tags is the closed set of task kinds this process accepts and recovers.
	Tags []string `json:"tags"`
	// Timezone for wall-clock and cron seed schedules (default: Local).
	Timezone string `json:"timezone,omitempty" env:"TIMEZONE"`
	// StartTimeout bounds recovery at startup (default 30s).
	StartTimeout string `json:"start_timeout,omitempty"`
	// OpTimeout bounds each store call made on behalf of CLI/seed
	// operations (default 10s, "0s" disables).
	OpTimeout string `json:"op_timeout,omitempty"`
	// Seeds are tasks scheduled at daemon start. Scheduling is idempotent
	// per key, so restarts don't duplicate them.
	Seeds []SeedConfig `json:"seeds,omitempty"`
}

// SeedConfig declares one task to schedule at start.
//
// At accepts an RFC3339 instant, "2006-01-02 15:04" wall time, a relative
// offset ("+15m", "in 2h") or a cron expression whose next occurrence is
// used once. A seed without a key gets a stable key derived from its tag
// and At.
type SeedConfig struct {
	Key     string          `json:"key,omitempty"`
	Tag     string          `json:"tag"`
	At      string          `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpsConfig controls the optional ops HTTP server (health, metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled" env:"ENABLED"`
	Addr          string `json:"addr,omitempty" env:"ADDR"`   // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty" env:"TOKEN"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"` // mount /debug/pprof/

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
