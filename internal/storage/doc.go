// Package storage provides the durable store used by bonfire.
//
// The store is a small hierarchical key-value service: values live at
// slash-separated paths, and a parent path can enumerate its direct children.
// That is all the redundancy layer needs to mirror scheduled tasks.
//
// Drivers:
//   - "memory": in-process tree (tests, throwaway runs)
//   - "file": jsonl journal + periodic snapshot (no external deps)
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via pgx
//   - "redis": one Redis hash per parent path
package storage
