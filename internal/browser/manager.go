// Package browser owns the live, human-visible browser sessions that fill
// matched values into a form and are then handed over to the user.
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/a3tai/doc-autofill/internal/artifact"
	"github.com/a3tai/doc-autofill/internal/logger"
)

// Manager opens, fills and closes automation sessions.
type Manager struct {
	driver    Driver
	artifacts Artifacts

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. artifacts may be nil, in which case
// screenshots are not kept.
func NewManager(driver Driver, artifacts Artifacts) *Manager {
	return &Manager{
		driver:    driver,
		artifacts: artifacts,
		sessions:  make(map[string]*Session),
	}
}

// Open launches a visible browser and navigates it to url. On failure the
// browser is torn down before the *OpenError is returned.
func (m *Manager) Open(ctx context.Context, url string) (*Session, error) {
	s := newSession(url)
	logger.Info(ctx, "launching automation session", "session_id", s.id, "url", url)

	w, err := m.driver.Launch(ctx)
	if err != nil {
		return nil, &OpenError{Reason: LaunchFailed, URL: url, Err: err}
	}
	if err := w.Navigate(ctx, url); err != nil {
		if cerr := w.Close(); cerr != nil {
			logger.Warn(ctx, "failed to tear down browser after navigation error", "session_id", s.id, "error", cerr)
		}
		return nil, navigationError(url, err)
	}

	s.window = w
	if err := s.transition(StateReady); err != nil {
		_ = w.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	go m.watch(s)
	logger.Info(ctx, "automation session ready", "session_id", s.id)
	return s, nil
}

// watch closes the session when its window disappears underneath it.
func (m *Manager) watch(s *Session) {
	select {
	case <-s.window.Done():
		if m.release(s) {
			logger.Info(context.Background(), "browser window closed by user", "session_id", s.id)
		}
	case <-s.done:
	}
}

func (m *Manager) release(s *Session) bool {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	return s.markClosed()
}

// ApplyMatches writes every planned value, takes a full-page screenshot,
// and leaves the session idle-open for the user. Individual write failures
// are recorded in the report; the only error is ErrSessionClosed.
func (m *Manager) ApplyMatches(ctx context.Context, s *Session, plan Plan) (report *FillReport, err error) {
	if err := s.transition(StateFilling); err != nil {
		return nil, err
	}
	report = &FillReport{
		TotalFields:     plan.Total(),
		PerFieldOutcome: make([]FieldOutcome, 0, plan.Total()),
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "panic while filling form", "session_id", s.id, "panic", r, "stack", string(debug.Stack()))
		}
		if terr := s.transition(StateIdleOpen); terr != nil {
			logger.Warn(ctx, "session did not return to idle-open", "session_id", s.id, "error", terr)
		}
	}()

	for _, f := range plan.Fills {
		outcome := m.applyOne(ctx, s, f)
		if outcome.Outcome == OutcomeFilled {
			report.FieldsFilled++
		}
		report.PerFieldOutcome = append(report.PerFieldOutcome, outcome)
	}
	for _, key := range plan.Unmatched {
		report.PerFieldOutcome = append(report.PerFieldOutcome, FieldOutcome{Key: key, Outcome: OutcomeUnmatched})
	}

	report.Screenshot = m.screenshot(ctx, s)
	logger.Info(ctx, "form filled", "session_id", s.id,
		"fields_filled", report.FieldsFilled, "total_fields", report.TotalFields, "screenshot", report.Screenshot)
	return report, nil
}

func (m *Manager) applyOne(ctx context.Context, s *Session, f Fill) (out FieldOutcome) {
	out = FieldOutcome{Key: f.Key, Locator: f.Target.Locator, Outcome: OutcomeSkipped}
	defer func() {
		if r := recover(); r != nil {
			out.Outcome = OutcomeSkipped
			out.Detail = fmt.Sprintf("panic: %v", r)
			logger.Error(ctx, "panic while filling field", "session_id", s.id, "key", f.Key, "panic", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		out.Detail = err.Error()
		return out
	}
	if err := fill(ctx, s.window, f.Target, f.Value); err != nil {
		out.Detail = err.Error()
		logger.Debug(ctx, "field skipped", "session_id", s.id, "key", f.Key, "locator", f.Target.Locator, "error", err)
		return out
	}
	out.Outcome = OutcomeFilled
	logger.Debug(ctx, "field filled", "session_id", s.id, "key", f.Key, "locator", f.Target.Locator)
	return out
}

// screenshot captures and stores the filled page, returning its id or ""
// when either step fails.
func (m *Manager) screenshot(ctx context.Context, s *Session) string {
	if m.artifacts == nil || ctx.Err() != nil {
		return ""
	}
	data, err := s.window.Screenshot(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to capture screenshot", "session_id", s.id, "error", err)
		return ""
	}
	id := artifact.NewScreenshotID()
	if err := m.artifacts.Put(ctx, id, data); err != nil {
		logger.Warn(ctx, "failed to store screenshot", "session_id", s.id, "error", err)
		return ""
	}
	return id
}

// KeepOpen hands a ready or filled session over to the user without
// filling anything further.
func (m *Manager) KeepOpen(s *Session) error {
	if s.State() == StateFilling {
		return nil
	}
	return s.transition(StateIdleOpen)
}

// Close tears the session's browser down. Closing an already closed
// session is a no-op.
func (m *Manager) Close(ctx context.Context, s *Session) error {
	if s.State() == StateClosed {
		return nil
	}
	var err error
	if s.window != nil {
		err = s.window.Close()
	}
	if m.release(s) {
		logger.Info(ctx, "automation session closed", "session_id", s.id)
	}
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Get returns an open session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Active returns the number of sessions not yet closed.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every open session. Used on process exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := m.Close(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
