package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	logx "bonfire/pkg/logx"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps the children of one parent path in one hash:
// key "<prefix>:<parent>", field "<name>".
type redisStore struct {
	db     redis.UniversalClient
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	url := strings.TrimSpace(cfg.Redis.URL)
	if url == "" {
		return nil, errors.New("storage.redis.url is required for redis driver")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Debug("redis store opened", logx.String("addr", opt.Addr))
	return NewRedis(client, cfg.Redis.Prefix, log), nil
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, prefix string, log logx.Logger) Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bonfire"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{db: client, prefix: prefix, log: log}
}

func (s *redisStore) hashKey(parent string) string {
	return s.prefix + ":" + parent
}

func (s *redisStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *redisStore) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	parent, name := Split(path)
	v, err := s.db.HGet(ctx, s.hashKey(parent), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", path, err)
	}
	return v, true, nil
}

func (s *redisStore) Children(ctx context.Context, path string) ([]Child, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	m, err := s.db.HGetAll(ctx, s.hashKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis children %s: %w", path, err)
	}
	out := make([]Child, 0, len(m))
	for k, v := range m {
		out = append(out, Child{Key: k, Value: []byte(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *redisStore) Set(ctx context.Context, path string, value []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)
	if err := s.db.HSet(ctx, s.hashKey(parent), name, value).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)
	if err := s.db.HDel(ctx, s.hashKey(parent), name).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", path, err)
	}
	return nil
}
