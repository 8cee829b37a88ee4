package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "bonfire/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot: path -> value)
//   - <prefix>.journal.jsonl (append-only journal of set/delete ops)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close. Every write is fsync'ed before it is acknowledged.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	nodes        map[string][]byte // full path -> value

	writes       int
	compactEvery int
}

type journalRecord struct {
	Op    string          `json:"op"` // "set" | "del"
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	// Load from snapshot + journal.
	nodes := map[string][]byte{}
	if err := loadSnapshot(snapPath, nodes); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, nodes); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	log.Debug("file store opened", logx.String("path", prefix), logx.Int("nodes", len(nodes)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		nodes:        nodes,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, false, ErrClosed
	}
	v, ok := s.nodes[path]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *fileStore) Children(ctx context.Context, path string) ([]Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	out := []Child{}
	for p, v := range s.nodes {
		parent, name := Split(p)
		if parent == path {
			out = append(out, Child{Key: name, Value: clone(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fileStore) Set(ctx context.Context, path string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(path); err != nil {
		return err
	}
	if !json.Valid(value) {
		return errors.New("file store only accepts JSON values")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "set", Path: path, Value: value}); err != nil {
		return err
	}
	s.nodes[path] = clone(value)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, ok := s.nodes[path]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: "del", Path: path}); err != nil {
		return err
	}
	delete(s.nodes, path)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	return s.journal.Sync()
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.compactEvery <= 0 || s.writes%s.compactEvery != 0 {
		return
	}
	// Best-effort compact; the journal still holds everything on failure.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("journal compact failed", logx.Any("err", err))
	}
}

func (s *fileStore) compactLocked() error {
	snap := make(map[string]json.RawMessage, len(s.nodes))
	for p, v := range s.nodes {
		snap[p] = v
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string][]byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]json.RawMessage
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = []byte(v)
	}
	return nil
}

func replayJournal(path string, out map[string][]byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r journalRecord
		// A torn last line (crash mid-write) is skipped.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Path == "" {
			continue
		}
		switch r.Op {
		case "set":
			out[r.Path] = []byte(r.Value)
		case "del":
			delete(out, r.Path)
		}
	}
	return sc.Err()
}
