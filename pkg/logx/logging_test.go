package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "sched"))

	log.Debug("hidden")
	log.Info("fired", String("key", "k1"), Int("n", 2), Duration("lag", 1500*time.Millisecond), Bool("ok", true))

	got := lines(t, &buf)
	require.Len(t, got, 1)
	require.Equal(t, "fired", got[0]["message"])
	require.Equal(t, "info", got[0]["level"])
	require.Equal(t, "sched", got[0]["comp"])
	require.Equal(t, "k1", got[0]["key"])
	require.EqualValues(t, 2, got[0]["n"])
	require.Equal(t, true, got[0]["ok"])
	require.Contains(t, got[0]["caller"], "logging_test.go:")
}

func TestLaterFieldsWin(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWriter(&buf, "trace").With(String("k", "a")).Warn("x", String("k", "b"), Err(nil), Stack(" "))
	got := lines(t, &buf)
	require.Len(t, got, 1)
	require.NotContains(t, got[0], "stack")
	// zerolog keeps both keys in the line; the decoder keeps the last.
	require.Equal(t, "b", got[0]["k"])
}

func TestZeroAndNopAreSilent(t *testing.T) {
	t.Parallel()
	var zero Logger
	require.True(t, zero.IsZero())
	zero.Error("nothing")
	require.False(t, Nop().IsZero())
	Nop().Error("nothing")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	require.Equal(t, LevelWarn, ParseLevel(" warning ", LevelInfo))
	require.Equal(t, LevelTrace, ParseLevel("TRACE", LevelInfo))
	require.Equal(t, LevelInfo, ParseLevel("bogus", LevelInfo))
}

func TestEnabled(t *testing.T) {
	t.Parallel()
	log := NewWriter(&bytes.Buffer{}, "warn")
	require.False(t, log.Enabled(LevelInfo))
	require.True(t, log.Enabled(LevelError))
}
