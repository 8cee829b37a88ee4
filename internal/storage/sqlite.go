package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "bonfire/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	parent, name := Split(path)
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE parent = ? AND name = ?`, parent, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s: %w", path, err)
	}
	return v, true, nil
}

func (s *sqliteStore) Children(ctx context.Context, path string) ([]Child, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM nodes WHERE parent = ? ORDER BY name`, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite children %s: %w", path, err)
	}
	defer rows.Close()
	out := []Child{}
	for rows.Next() {
		var c Child
		if err := rows.Scan(&c.Key, &c.Value); err != nil {
			return nil, fmt.Errorf("sqlite children %s: %w", path, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite children %s: %w", path, err)
	}
	return out, nil
}

func (s *sqliteStore) Set(ctx context.Context, path string, value []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes(parent, name, value) VALUES(?,?,?)
		 ON CONFLICT(parent, name) DO UPDATE SET value=excluded.value`,
		parent, name, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", path, err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE parent = ? AND name = ?`, parent, name); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", path, err)
	}
	return nil
}
