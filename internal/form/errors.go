package form

import (
	"errors"
	"fmt"
)

// Reason categorises why probing failed.
type Reason int

const (
	ReasonUnknown Reason = iota
	UnreachableURL
	Timeout
	NoFillableFields
)

// String returns the reason name used in error payloads.
func (r Reason) String() string {
	switch r {
	case UnreachableURL:
		return "UnreachableUrl"
	case Timeout:
		return "Timeout"
	case NoFillableFields:
		return "NoFillableFields"
	default:
		return "Unknown"
	}
}

// ProbeError is a terminal probing failure for a run.
type ProbeError struct {
	Reason Reason
	URL    string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s failed (%s): %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s failed (%s)", e.URL, e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Is matches another *ProbeError with the same Reason.
func (e *ProbeError) Is(target error) bool {
	var t *ProbeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// ReasonOf extracts the probe failure reason from err.
func ReasonOf(err error) (Reason, bool) {
	var e *ProbeError
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return ReasonUnknown, false
}
