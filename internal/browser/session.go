package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of an automation session.
type State string

const (
	StateLaunching State = "launching"
	StateReady     State = "ready"
	StateFilling   State = "filling"
	StateIdleOpen  State = "idle_open"
	StateClosed    State = "closed"
)

var transitions = map[State][]State{
	StateLaunching: {StateReady},
	StateReady:     {StateFilling, StateIdleOpen},
	StateFilling:   {StateIdleOpen},
	StateIdleOpen:  {StateFilling, StateIdleOpen},
}

// Session is the handle to one live browser window. Only the Manager that
// opened it changes its state.
type Session struct {
	id       string
	url      string
	openedAt time.Time
	window   Window

	mu    sync.RWMutex
	state State

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(url string) *Session {
	return &Session{
		id:       uuid.NewString(),
		url:      url,
		openedAt: time.Now(),
		state:    StateLaunching,
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string          { return s.id }
func (s *Session) URL() string         { return s.url }
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("session %s: invalid transition %s -> %s", s.id, s.state, to)
}

// markClosed reports whether this call performed the close.
func (s *Session) markClosed() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		closed = true
	})
	return closed
}
