package pipeline

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a pipeline run.
type State string

const (
	StateIdle            State = "idle"
	StateExtracting      State = "extracting"
	StateExtracted       State = "extracted"
	StateAwaitingFormURL State = "awaiting_form_url"
	StateFilling         State = "filling"
	StateCompleted       State = "completed"
	StateError           State = "error"
)

var (
	// ErrRunActive is returned when an operation would start a second run
	// while one is in flight or still owns an open browser session.
	ErrRunActive = errors.New("a pipeline run is already active")
	// ErrNoRun is returned when an operation needs a run and there is none.
	ErrNoRun = errors.New("no pipeline run")
	// ErrNoSession is returned by CloseSession when the run holds no
	// browser session.
	ErrNoSession = errors.New("run has no open session")
	// ErrInvalidTransition marks a state change the machine does not allow.
	ErrInvalidTransition = errors.New("invalid pipeline state transition")
	// ErrCanceled is recorded on runs aborted by Cancel or Reset.
	ErrCanceled = errors.New("pipeline run canceled")
	// ErrNoData is returned when a fill request carries no values.
	ErrNoData = errors.New("no field values to fill")
)

var transitions = map[State][]State{
	StateIdle:            {StateExtracting, StateAwaitingFormURL},
	StateExtracting:      {StateExtracted, StateError},
	StateExtracted:       {StateAwaitingFormURL, StateError, StateIdle},
	StateAwaitingFormURL: {StateFilling, StateError, StateIdle},
	StateFilling:         {StateCompleted, StateError},
	StateCompleted:       {StateIdle},
	StateError:           {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// busy reports whether a run in state s has work in flight.
func (s State) busy() bool {
	return s == StateExtracting || s == StateFilling
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
