package task

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestNewRejectsInvalidFields(t *testing.T) {
	t.Parallel()
	at := time.Now().Add(time.Minute)
	tests := []struct {
		name string
		key  string
		tag  string
		at   time.Time
		want error
	}{
		{name: "empty key", key: "", tag: "job", at: at, want: ErrInvalidKey},
		{name: "dotted key", key: "a.b", tag: "job", at: at, want: ErrInvalidKey},
		{name: "slash key", key: "a/b", tag: "job", at: at, want: ErrInvalidKey},
		{name: "control key", key: "a\x01", tag: "job", at: at, want: ErrInvalidKey},
		{name: "empty tag", key: "k", tag: "", at: at, want: ErrInvalidTag},
		{name: "blank tag", key: "k", tag: "  ", at: at, want: ErrInvalidTag},
		{name: "zero time", key: "k", tag: "job", at: time.Time{}, want: ErrInvalidSchedule},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.key, tt.tag, tt.at)
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidPayload(t *testing.T) {
	t.Parallel()
	_, err := New("k", "job", time.Now(), WithPayload(json.RawMessage(`{"open":`)))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestMarshalRoundTripWithPayload(t *testing.T) {
	t.Parallel()
	at := time.Now().Add(time.Minute)
	in, err := New("test_key", "TYPE_SIMPLE_JOB", at, WithPayloadValue(map[string]string{"test": "hello_world"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("wire not JSON: %v", err)
	}
	if wire["id"] != "test_key" || wire["tag"] != "TYPE_SIMPLE_JOB" {
		t.Fatalf("unexpected wire record: %s", raw)
	}
	if _, ok := wire["payload"].(string); !ok {
		t.Fatalf("payload must be embedded as a string: %s", raw)
	}
	if _, ok := wire["type"]; ok {
		t.Fatalf("legacy type field must not be written: %s", raw)
	}

	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("round trip mismatch: %v vs %v", out, in)
	}
	if out.ScheduledAt().UnixMilli() != at.UnixMilli() {
		t.Fatalf("ScheduledAt = %d, want %d", out.ScheduledAt().UnixMilli(), at.UnixMilli())
	}
	var payload map[string]string
	if err := out.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if !reflect.DeepEqual(payload, map[string]string{"test": "hello_world"}) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestMarshalOmitsMissingPayload(t *testing.T) {
	t.Parallel()
	in, _ := New("k", "job", time.UnixMilli(1_700_000_000_000))
	raw, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"id":"k","tag":"job","scheduled_at_ms":1700000000000}`
	if string(raw) != want {
		t.Fatalf("Marshal = %s, want %s", raw, want)
	}
	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.HasPayload() || out.Payload() != nil {
		t.Fatalf("expected no payload, got %s", out.Payload())
	}
}

func TestUnmarshalRejectsHalfRecords(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		`{"tag":"job","scheduled_at_ms":1}`,
		`{"id":"k","scheduled_at_ms":1}`,
		`{"id":"k","tag":"job"}`,
		`{"id":"a.b","tag":"job","scheduled_at_ms":1}`,
		`not json`,
	} {
		_, err := Unmarshal([]byte(raw))
		var de *DecodeError
		if !errors.As(err, &de) || !errors.Is(err, ErrMalformed) {
			t.Fatalf("Unmarshal(%s) err = %v, want malformed DecodeError", raw, err)
		}
	}
}

func TestPayloadIsCopied(t *testing.T) {
	t.Parallel()
	tk, _ := New("k", "job", time.Now(), WithPayload(json.RawMessage(`{"a":1}`)))
	p := tk.Payload()
	p[0] = 'X'
	if string(tk.Payload()) != `{"a":1}` {
		t.Fatalf("payload mutated through accessor: %s", tk.Payload())
	}
}
