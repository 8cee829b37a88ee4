package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "bonfire/pkg/logx"
)

func TestFileContract(t *testing.T) {
	t.Parallel()
	st, err := openFile(Config{Path: filepath.Join(t.TempDir(), "store.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer st.Close()
	runStoreContract(t, st, "tasks")
}

func TestFileReplaysJournalAfterReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	fs := st.(*fileStore)
	if err := fs.Set(ctx, "ns/keep", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := fs.Set(ctx, "ns/drop", []byte(`{"n":2}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := fs.Delete(ctx, "ns/drop"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Simulate a crash: close the journal without compacting.
	_ = fs.journal.Close()

	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	kids, err := st2.Children(ctx, "ns")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(kids) != 1 || kids[0].Key != "keep" || string(kids[0].Value) != `{"n":1}` {
		t.Fatalf("Children after replay = %+v", kids)
	}
}

func TestFileCompactsIntoSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	fs := st.(*fileStore)
	fs.compactEvery = 2
	for _, k := range []string{"a", "b", "c"} {
		if err := fs.Set(ctx, "ns/"+k, []byte(`true`)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	kids, _ := st2.Children(ctx, "ns")
	if len(kids) != 3 {
		t.Fatalf("Children after compaction = %d, want 3", len(kids))
	}
}
