package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "bonfire/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS bonfire_nodes (
	parent TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  BYTEA NOT NULL,
	PRIMARY KEY (parent, name)
)`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres store opened")
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	parent, name := Split(path)
	var v []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM bonfire_nodes WHERE parent = $1 AND name = $2`, parent, name).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get %s: %w", path, err)
	}
	return v, true, nil
}

func (s *postgresStore) Children(ctx context.Context, path string) ([]Child, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM bonfire_nodes WHERE parent = $1 ORDER BY name`, path)
	if err != nil {
		return nil, fmt.Errorf("postgres children %s: %w", path, err)
	}
	defer rows.Close()
	out := []Child{}
	for rows.Next() {
		var c Child
		if err := rows.Scan(&c.Key, &c.Value); err != nil {
			return nil, fmt.Errorf("postgres children %s: %w", path, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres children %s: %w", path, err)
	}
	return out, nil
}

func (s *postgresStore) Set(ctx context.Context, path string, value []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bonfire_nodes(parent, name, value) VALUES($1,$2,$3)
		 ON CONFLICT(parent, name) DO UPDATE SET value = EXCLUDED.value`,
		parent, name, value,
	)
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", path, err)
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)
	if _, err := s.pool.Exec(ctx, `DELETE FROM bonfire_nodes WHERE parent = $1 AND name = $2`, parent, name); err != nil {
		return fmt.Errorf("postgres delete %s: %w", path, err)
	}
	return nil
}
