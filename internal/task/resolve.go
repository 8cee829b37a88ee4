package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// atParser accepts 5-field and 6-field (with seconds) cron specs and descriptors.
var atParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ResolveAt turns a human schedule string into a single instant.
//
// Supported forms:
//   - RFC3339 timestamp: "2026-11-02T09:00:00Z"
//   - Local wall time: "2026-11-02 09:00" (in loc)
//   - Relative offset: "+90s", "+2h", "in 15m"
//   - Cron expression: "0 9 * * 1", "cron:@daily"; the next occurrence
//     after now is used once. Nothing recurs.
func ResolveAt(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty schedule", ErrInvalidSchedule)
	}
	if loc == nil {
		loc = time.Local
	}
	low := strings.ToLower(s)

	// Relative offsets.
	if strings.HasPrefix(s, "+") || strings.HasPrefix(low, "in ") {
		v := strings.TrimSpace(s[1:])
		if !strings.HasPrefix(s, "+") {
			v = strings.TrimSpace(s[3:])
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid offset %q", ErrInvalidSchedule, raw)
		}
		if d <= 0 {
			return time.Time{}, fmt.Errorf("%w: offset must be > 0", ErrInvalidSchedule)
		}
		return now.Add(d), nil
	}

	// Absolute timestamps.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc); err == nil {
		return t, nil
	}

	// Cron: explicit prefix, descriptor, or anything with fields.
	expr := s
	if strings.HasPrefix(low, "cron:") {
		expr = strings.TrimSpace(s[len("cron:"):])
	} else if !strings.HasPrefix(s, "@") && !strings.ContainsAny(s, " \t") {
		return time.Time{}, fmt.Errorf(
			"%w: %q (use RFC3339, '+15m', or a cron expression like '0 9 * * *')",
			ErrInvalidSchedule, raw,
		)
	}
	sched, err := atParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, expr, err)
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: cron %q never fires", ErrInvalidSchedule, expr)
	}
	return next, nil
}
