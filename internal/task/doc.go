// Package task defines the one-shot task record scheduled by bonfire.
//
// A Task is an immutable value: key, tag, scheduled instant and an optional
// opaque JSON payload. Tasks travel through the durable store as a small
// JSON wire record; the tag selects which registered Kind the record belongs
// to when several task kinds share one namespace.
package task
