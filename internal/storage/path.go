package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Separator joins path segments.
const Separator = "/"

// ValidateSegment reports whether seg can be used as one path segment.
//
// Segments must be non-empty valid UTF-8 and must not contain any of
// . # $ [ ] / or ASCII control characters (0x00-0x1F, 0x7F).
func ValidateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if !utf8.ValidString(seg) {
		return fmt.Errorf("%w: segment %q is not valid UTF-8", ErrInvalidPath, seg)
	}
	for _, r := range seg {
		switch {
		case r == '.', r == '#', r == '$', r == '[', r == ']', r == '/':
			return fmt.Errorf("%w: segment %q contains %q", ErrInvalidPath, seg, r)
		case r < 0x20, r == 0x7f:
			return fmt.Errorf("%w: segment %q contains a control character", ErrInvalidPath, seg)
		}
	}
	return nil
}

// ValidatePath validates every segment of a slash-separated path.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, Separator) {
		if err := ValidateSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

// Join builds a path from segments. It does not validate.
func Join(segs ...string) string {
	return strings.Join(segs, Separator)
}

// Split returns the parent path and the last segment of path.
// The parent of a single-segment path is "".
func Split(path string) (parent, name string) {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
