package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. BONFIRE_STORE_DSN.
const EnvPrefix = "BONFIRE_"

// ApplyEnv overlays BONFIRE_* environment variables onto cfg. Unset
// variables leave the file value alone.
//
// Recognized: LOG_LEVEL, LOG_JSON, STORE_DRIVER, STORE_PATH,
// STORE_NAMESPACE, STORE_DSN, STORE_REDIS_URL, STORE_REDIS_PREFIX,
// SCHEDULER_TIMEZONE, OPS_ENABLED, OPS_ADDR, OPS_TOKEN.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

// applyEnv reads from environ when non-nil (tests), else the process env.
func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}
