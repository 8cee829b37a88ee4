package task

import (
	"encoding/json"
	"errors"
	"time"
)

// wireRecord is the durable representation of a Task:
//
//	{"id": <key>, "tag": <tag>, "scheduled_at_ms": <int>, "payload": "<json>"}
//
// The payload is embedded as a JSON-encoded string.
type wireRecord struct {
	ID            string  `json:"id"`
	Tag           string  `json:"tag"`
	ScheduledAtMS *int64  `json:"scheduled_at_ms"`
	Payload       *string `json:"payload,omitempty"`
}

// Marshal encodes t as a wire record.
func Marshal(t Task) ([]byte, error) {
	if t.IsZero() {
		return nil, errors.New("marshal: zero task")
	}
	ms := t.at.UnixMilli()
	rec := wireRecord{ID: t.key, Tag: t.tag, ScheduledAtMS: &ms}
	if len(t.payload) > 0 {
		p := string(t.payload)
		rec.Payload = &p
	}
	return json.Marshal(rec)
}

// Unmarshal decodes a wire record without tag dispatch. Failures are
// reported as *DecodeError wrapping ErrMalformed or a validation error.
func Unmarshal(raw []byte) (Task, error) {
	var rec wireRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Task{}, &DecodeError{Err: errors.Join(ErrMalformed, err)}
	}
	if rec.ID == "" || rec.Tag == "" || rec.ScheduledAtMS == nil {
		return Task{}, &DecodeError{Key: rec.ID, Tag: rec.Tag, Err: ErrMalformed}
	}
	var opts []Option
	if rec.Payload != nil {
		opts = append(opts, WithPayload(json.RawMessage(*rec.Payload)))
	}
	t, err := New(rec.ID, rec.Tag, time.UnixMilli(*rec.ScheduledAtMS), opts...)
	if err != nil {
		return Task{}, &DecodeError{Key: rec.ID, Tag: rec.Tag, Err: errors.Join(ErrMalformed, err)}
	}
	return t, nil
}

// peekTag reads only the discriminator of a wire record.
func peekTag(raw []byte) (key, tag string, err error) {
	var head struct {
		ID  string `json:"id"`
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", "", err
	}
	return head.ID, head.Tag, nil
}
