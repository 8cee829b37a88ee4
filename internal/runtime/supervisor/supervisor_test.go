package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")

	s.Go("fails", func(context.Context) error { return boom })
	s.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Wait(waitCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("Wait err=%v want %v", err, boom)
	}
}

func TestGoRecoversPanics(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panics", func(context.Context) error { panic("oops") })
	err := s.Wait(waitCtx(t))
	if err == nil {
		t.Fatalf("panic not reported")
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 || snap[0].Active != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs=%d want 3", got)
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Restarts != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(context.Context) error {
		runs.Add(1)
		panic("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	if err := s.Wait(waitCtx(t)); err == nil {
		t.Fatalf("expected failure after giving up")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs=%d want 3 (initial + 2 restarts)", got)
	}
}

func TestStopCancelsContext(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
