package extraction

import (
	"errors"
	"fmt"
)

// Reason categorises why extraction failed.
type Reason int

const (
	ReasonUnknown Reason = iota
	UnsupportedFormat
	UnreadableContent
	NoFieldsFound
)

// String returns the reason name used in error payloads.
func (r Reason) String() string {
	switch r {
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case UnreadableContent:
		return "UnreadableContent"
	case NoFieldsFound:
		return "NoFieldsFound"
	default:
		return "Unknown"
	}
}

// Error is a terminal extraction failure for a run.
type Error struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed (%s): %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Reason, so callers can write
// errors.Is(err, &extraction.Error{Reason: extraction.NoFieldsFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

func newError(reason Reason, err error, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...), Err: err}
}

// ReasonOf extracts the failure reason from err.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return ReasonUnknown, false
}
