package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionClosed is returned for any operation on a closed session.
var ErrSessionClosed = errors.New("automation session is closed")

// Reason categorises why a session failed to open.
type Reason int

const (
	ReasonUnknown Reason = iota
	LaunchFailed
	NavigationFailed
	Timeout
)

func (r Reason) String() string {
	switch r {
	case LaunchFailed:
		return "LaunchFailed"
	case NavigationFailed:
		return "NavigationFailed"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// OpenError reports a failed Open. The browser process has already been
// torn down when it is returned.
type OpenError struct {
	Reason Reason
	URL    string
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("open session for %s failed (%s): %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("open session for %s failed (%s)", e.URL, e.Reason)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Is matches another *OpenError with the same Reason.
func (e *OpenError) Is(target error) bool {
	var t *OpenError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

func navigationError(url string, err error) *OpenError {
	reason := NavigationFailed
	if errors.Is(err, context.DeadlineExceeded) {
		reason = Timeout
	}
	return &OpenError{Reason: reason, URL: url, Err: err}
}
