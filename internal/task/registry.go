package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is one registered task variant, identified by its tag.
type Kind struct {
	Tag string
	// Validate optionally checks the payload of a task of this kind.
	// It runs on commit and on decode.
	Validate func(payload json.RawMessage) error
}

// Registry is the closed set of task kinds a scheduler understands.
// It is built once and read-only afterwards.
type Registry struct {
	kinds map[string]Kind
}

// Unknown is the sentinel for a stored record that did not decode to a
// registered Kind. Raw keeps the bytes so nothing is lost.
type Unknown struct {
	Key string
	Tag string
	Raw []byte
	Err error
}

// NewRegistry builds a registry from kinds. Tags must be unique and non-empty.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		tag := strings.TrimSpace(k.Tag)
		if tag == "" || tag != k.Tag {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTag, k.Tag)
		}
		if _, dup := r.kinds[tag]; dup {
			return nil, fmt.Errorf("duplicate task kind %q", tag)
		}
		r.kinds[tag] = k
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(kinds ...Kind) *Registry {
	r, err := NewRegistry(kinds...)
	if err != nil {
		panic(err)
	}
	return r
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.kinds))
	for t := range r.kinds {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Kind looks up a registered kind.
func (r *Registry) Kind(tag string) (Kind, bool) {
	k, ok := r.kinds[tag]
	return k, ok
}

// Check verifies that t belongs to a registered kind and that its payload
// passes the kind's validator.
func (r *Registry) Check(t Task) error {
	k, ok := r.kinds[t.tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, t.tag)
	}
	if k.Validate != nil {
		if err := k.Validate(t.Payload()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return nil
}

// Decode resolves a wire record to its registered kind. Records with an
// unregistered tag or a malformed body fail with *DecodeError.
func (r *Registry) Decode(raw []byte) (Task, error) {
	key, tag, err := peekTag(raw)
	if err != nil {
		return Task{}, &DecodeError{Err: errors.Join(ErrMalformed, err)}
	}
	if _, ok := r.kinds[tag]; !ok {
		if tag == "" {
			return Task{}, &DecodeError{Key: key, Err: ErrMalformed}
		}
		return Task{}, &DecodeError{Key: key, Tag: tag, Err: ErrUnknownTag}
	}
	t, err := Unmarshal(raw)
	if err != nil {
		return Task{}, err
	}
	if err := r.Check(t); err != nil {
		return Task{}, &DecodeError{Key: key, Tag: tag, Err: err}
	}
	return t, nil
}

// UnknownFrom builds the sentinel for a record stored at key.
func UnknownFrom(key string, raw []byte, err error) Unknown {
	u := Unknown{Key: key, Raw: raw, Err: err}
	var de *DecodeError
	if errors.As(err, &de) {
		u.Tag = de.Tag
	}
	return u
}
