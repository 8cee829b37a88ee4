package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. Values are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	nodes  map[string]map[string][]byte // parent -> name -> value
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nodes: map[string]map[string][]byte{}}
}

func (m *Memory) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	parent, name := Split(path)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.nodes[parent][name]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (m *Memory) Children(ctx context.Context, path string) ([]Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	kids := m.nodes[path]
	out := make([]Child, 0, len(kids))
	for k, v := range kids {
		out = append(out, Child{Key: k, Value: clone(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Set(ctx context.Context, path string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	kids := m.nodes[parent]
	if kids == nil {
		kids = map[string][]byte{}
		m.nodes[parent] = kids
	}
	kids[name] = clone(value)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(path); err != nil {
		return err
	}
	parent, name := Split(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if kids := m.nodes[parent]; kids != nil {
		delete(kids, name)
		if len(kids) == 0 {
			delete(m.nodes, parent)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
