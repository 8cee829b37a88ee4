package task

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey      = errors.New("invalid task key")
	ErrInvalidTag      = errors.New("task tag must be a non-empty string")
	ErrInvalidSchedule = errors.New("task must have a valid scheduled time")
	ErrInvalidPayload  = errors.New("task payload must be valid JSON")

	ErrMalformed  = errors.New("malformed task record")
	ErrUnknownTag = errors.New("unknown task tag")
)

// DecodeError reports a stored record that could not be turned into a Task.
// Key and Tag hold whatever could be read from the record.
type DecodeError struct {
	Key string
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Key != "" && e.Tag != "":
		return fmt.Sprintf("decode task %q (tag %q): %v", e.Key, e.Tag, e.Err)
	case e.Key != "":
		return fmt.Sprintf("decode task %q: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("decode task: %v", e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }
