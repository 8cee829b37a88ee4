package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed      = errors.New("storage closed")
	ErrInvalidPath = errors.New("invalid storage path")
)

// Store is the hierarchical key-value API consumed by the redundancy layer.
//
// Contract:
//   - Get returns ok=false (and no error) for a missing path.
//   - Children returns the direct children of path ordered by Key; an
//     empty result is not an error.
//   - Set overwrites unconditionally.
//   - Delete of a missing path is a no-op.
//
// Every driver validates paths before touching its backend.
type Store interface {
	Get(ctx context.Context, path string) (value []byte, ok bool, err error)
	Children(ctx context.Context, path string) ([]Child, error)
	Set(ctx context.Context, path string, value []byte) error
	Delete(ctx context.Context, path string) error
	Close() error
}

// Child is one entry returned by Store.Children.
type Child struct {
	Key   string
	Value []byte
}

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only, lost on exit
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL database (DSN)
//   - "redis": Redis server (Redis.URL)
type Config struct {
	Driver      string
	Path        string        // file/sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	URL    string
	Prefix string // key prefix for hashes; default "bonfire"
}
