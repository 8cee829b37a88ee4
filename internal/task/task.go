package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bonfire/internal/storage"
)

// Task is a scheduled unit of work. The zero value is not a valid Task;
// build one with New or decode one with Unmarshal / Registry.Decode.
type Task struct {
	key     string
	tag     string
	at      time.Time
	payload json.RawMessage
}

// Option configures optional Task fields at construction.
type Option func(*Task) error

// WithPayload attaches a raw JSON payload. Empty input means "no payload".
func WithPayload(raw json.RawMessage) Option {
	return func(t *Task) error {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			t.payload = nil
			return nil
		}
		if !json.Valid(raw) {
			return ErrInvalidPayload
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		t.payload = buf.Bytes()
		return nil
	}
}

// WithPayloadValue marshals v as the payload.
func WithPayloadValue(v any) Option {
	return func(t *Task) error {
		if v == nil {
			t.payload = nil
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return WithPayload(b)(t)
	}
}

// New validates and builds a Task. The instant is kept at millisecond
// precision, which is what the wire record carries.
func New(key, tag string, at time.Time, opts ...Option) (Task, error) {
	if err := ValidateKey(key); err != nil {
		return Task{}, err
	}
	if strings.TrimSpace(tag) == "" {
		return Task{}, ErrInvalidTag
	}
	if at.IsZero() {
		return Task{}, ErrInvalidSchedule
	}
	t := Task{key: key, tag: tag, at: time.UnixMilli(at.UnixMilli())}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(&t); err != nil {
			return Task{}, err
		}
	}
	return t, nil
}

// ValidateKey checks that key is usable as a task key (and therefore as a
// durable store path segment).
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if err := storage.ValidateSegment(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

func (t Task) Key() string            { return t.key }
func (t Task) Tag() string            { return t.tag }
func (t Task) ScheduledAt() time.Time { return t.at }

// Payload returns a copy of the raw payload, or nil.
func (t Task) Payload() json.RawMessage {
	if t.payload == nil {
		return nil
	}
	out := make(json.RawMessage, len(t.payload))
	copy(out, t.payload)
	return out
}

// HasPayload reports whether a payload is attached.
func (t Task) HasPayload() bool { return len(t.payload) > 0 }

// DecodePayload unmarshals the payload into v. It is a no-op without payload.
func (t Task) DecodePayload(v any) error {
	if len(t.payload) == 0 {
		return nil
	}
	return json.Unmarshal(t.payload, v)
}

// IsZero reports whether t is the zero Task.
func (t Task) IsZero() bool { return t.key == "" }

// Due reports whether t is at or before now.
func (t Task) Due(now time.Time) bool { return !t.at.After(now) }

// Equal compares every field; instants compare by millisecond.
func (t Task) Equal(o Task) bool {
	return t.key == o.key &&
		t.tag == o.tag &&
		t.at.UnixMilli() == o.at.UnixMilli() &&
		bytes.Equal(t.payload, o.payload)
}

func (t Task) String() string {
	return fmt.Sprintf("%s[%s]@%s", t.key, t.tag, t.at.UTC().Format(time.RFC3339))
}
