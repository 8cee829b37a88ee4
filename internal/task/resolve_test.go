package task

import (
	"errors"
	"testing"
	"time"
)

func TestResolveAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "offset", raw: "+90s", want: now.Add(90 * time.Second)},
		{name: "in offset", raw: "in 2h", want: now.Add(2 * time.Hour)},
		{name: "rfc3339", raw: "2026-03-11T09:00:00Z", want: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{name: "wall time", raw: "2026-03-11 09:15", want: time.Date(2026, 3, 11, 9, 15, 0, 0, time.UTC)},
		{name: "cron", raw: "0 9 * * *", want: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		{name: "prefixed cron", raw: "cron:@daily", want: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAt(tt.raw, now, time.UTC)
			if err != nil {
				t.Fatalf("ResolveAt(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ResolveAt(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestResolveAtInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "+-5m", "61 * * * *"} {
		if _, err := ResolveAt(raw, time.Now(), time.UTC); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("ResolveAt(%q) err = %v, want ErrInvalidSchedule", raw, err)
		}
	}
}
