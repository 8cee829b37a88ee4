package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"bonfire/internal/redundancy"
	"bonfire/internal/storage"
	"bonfire/internal/task"
	logx "bonfire/pkg/logx"
)

func seeded(t *testing.T) *redundancy.Service {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	red, err := redundancy.New(st, "bonfire/tasks", task.MustRegistry(task.Kind{Tag: "reminder"}), logx.Nop())
	if err != nil {
		t.Fatalf("redundancy.New: %v", err)
	}
	tk, err := task.New("k1", "reminder", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), task.WithPayload([]byte(`{"a":1}`)))
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	if err := red.Commit(ctx, tk); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := st.Set(ctx, "bonfire/tasks/zz", []byte(`{"id":"zz","tag":"legacy","scheduled_at_ms":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	return red
}

func TestListTasks(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	if err := listTasks(context.Background(), seeded(t), &out); err != nil {
		t.Fatalf("listTasks: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d\n%s", len(lines), out.String())
	}
	var v taskView
	if err := json.Unmarshal([]byte(lines[0]), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Key != "k1" || v.Tag != "reminder" || string(v.Payload) != `{"a":1}` || v.ScheduledAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("view=%+v", v)
	}
	if err := json.Unmarshal([]byte(lines[1]), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Unknown || v.Key != "zz" || v.Tag != "legacy" {
		t.Fatalf("unknown view=%+v", v)
	}
}

func TestGetTask(t *testing.T) {
	t.Parallel()
	red := seeded(t)
	var out bytes.Buffer
	if err := getTask(context.Background(), red, "k1", &out); err != nil {
		t.Fatalf("getTask: %v", err)
	}
	if !strings.Contains(out.String(), `"key":"k1"`) {
		t.Fatalf("out=%s", out.String())
	}
	if err := getTask(context.Background(), red, "missing", &out); err == nil {
		t.Fatalf("expected not-found error")
	}
}
