package storage

import (
	"errors"
	"strings"

	logx "bonfire/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
