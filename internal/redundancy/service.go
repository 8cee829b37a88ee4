// Package redundancy mirrors scheduled tasks into the durable store.
//
// It is pure storage: one namespace (a store path) holds one child per task
// key. It knows nothing about timers.
package redundancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bonfire/internal/storage"
	"bonfire/internal/task"
	logx "bonfire/pkg/logx"
)

// Batch is the result of GetAll: decodable tasks plus the records that
// did not decode to a registered kind.
type Batch struct {
	Tasks   []task.Task
	Unknown []task.Unknown
}

// Service is the durable CRUD layer over task records.
type Service struct {
	store     storage.Store
	namespace string
	reg       *task.Registry
	log       logx.Logger
}

// New builds a Service storing tasks under namespace (a slash-separated
// store path, e.g. "bonfire/tasks").
func New(store storage.Store, namespace string, reg *task.Registry, log logx.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("redundancy: store is required")
	}
	if reg == nil {
		return nil, errors.New("redundancy: registry is required")
	}
	namespace = strings.Trim(strings.TrimSpace(namespace), storage.Separator)
	if err := storage.ValidatePath(namespace); err != nil {
		return nil, fmt.Errorf("redundancy: namespace: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		namespace: namespace,
		reg:       reg,
		log:       log.With(logx.String("comp", "redundancy"), logx.String("ns", namespace)),
	}, nil
}

// Namespace returns the store path holding the task records.
func (s *Service) Namespace() string { return s.namespace }

// Registry returns the tag registry used for decoding.
func (s *Service) Registry() *task.Registry { return s.reg }

// GetAll returns every task in the namespace. An empty namespace yields an
// empty Batch. Records that fail to decode are returned as Unknown and do
// not fail the call.
func (s *Service) GetAll(ctx context.Context) (Batch, error) {
	kids, err := s.store.Children(ctx, s.namespace)
	if err != nil {
		return Batch{}, fmt.Errorf("redundancy getAll: %w", err)
	}
	b := Batch{Tasks: make([]task.Task, 0, len(kids))}
	for _, c := range kids {
		t, err := s.decode(c.Key, c.Value)
		if err != nil {
			s.log.Warn("undecodable task record", logx.String("key", c.Key), logx.Err(err))
			b.Unknown = append(b.Unknown, task.UnknownFrom(c.Key, c.Value, err))
			continue
		}
		b.Tasks = append(b.Tasks, t)
	}
	return b, nil
}

// Fetch returns the task stored at key. ok is false when no record exists
// or when the record does not decode to a registered kind; the latter is
// logged and left in place, so a later Commit overwrites it.
func (s *Service) Fetch(ctx context.Context, key string) (task.Task, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return task.Task{}, false, err
	}
	raw, ok, err := s.store.Get(ctx, path)
	if err != nil {
		return task.Task{}, false, fmt.Errorf("redundancy fetch %q: %w", key, err)
	}
	if !ok {
		return task.Task{}, false, nil
	}
	t, err := s.decode(key, raw)
	if err != nil {
		u := task.UnknownFrom(key, raw, err)
		s.log.Warn("undecodable task record", logx.String("key", key), logx.String("tag", u.Tag), logx.Err(err))
		return task.Task{}, false, nil
	}
	return t, true, nil
}

// Commit upserts t. The last writer wins.
func (s *Service) Commit(ctx context.Context, t task.Task) error {
	if t.IsZero() {
		return errors.New("redundancy commit: zero task")
	}
	if err := s.reg.Check(t); err != nil {
		return fmt.Errorf("redundancy commit %q: %w", t.Key(), err)
	}
	path, err := s.path(t.Key())
	if err != nil {
		return err
	}
	raw, err := task.Marshal(t)
	if err != nil {
		return fmt.Errorf("redundancy commit %q: %w", t.Key(), err)
	}
	if err := s.store.Set(ctx, path, raw); err != nil {
		return fmt.Errorf("redundancy commit %q: %w", t.Key(), err)
	}
	s.log.Trace("task committed", logx.String("key", t.Key()), logx.String("tag", t.Tag()))
	return nil
}

// Remove deletes the record at key. Missing records are not an error.
func (s *Service) Remove(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("redundancy remove %q: %w", key, err)
	}
	s.log.Trace("task removed", logx.String("key", key))
	return nil
}

func (s *Service) path(key string) (string, error) {
	if err := task.ValidateKey(key); err != nil {
		return "", err
	}
	return storage.Join(s.namespace, key), nil
}

func (s *Service) decode(key string, raw []byte) (task.Task, error) {
	t, err := s.reg.Decode(raw)
	if err != nil {
		return task.Task{}, err
	}
	if t.Key() != key {
		return task.Task{}, &task.DecodeError{
			Key: key,
			Tag: t.Tag(),
			Err: fmt.Errorf("%w: record id %q stored under %q", task.ErrMalformed, t.Key(), key),
		}
	}
	return t, nil
}
