package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
	"github.com/a3tai/doc-autofill/internal/matcher"
)

// Run binds one document, one field set, one form URL, one match set and
// one automation session. It is never reused.
type Run struct {
	ID        string
	StartedAt time.Time

	mu          sync.Mutex
	state       State
	history     []State
	updatedAt   time.Time
	extraction  *extraction.Result
	formURL     string
	descriptors []form.Descriptor
	matches     []matcher.Match
	summary     *Summary
	err         error

	session  *browser.Session
	cancel   context.CancelFunc
	finished chan struct{}
}

func newRun() *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: now,
		state:     StateIdle,
		history:   []State{StateIdle},
		updatedAt: now,
	}
}

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setState moves the run to `to` and returns the state it left.
func (r *Run) setState(to State) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.state
	if !canTransition(from, to) {
		return from, transitionError(from, to)
	}
	r.state = to
	r.history = append(r.history, to)
	r.updatedAt = time.Now()
	return from, nil
}

// fail records err and moves the run to StateError.
func (r *Run) fail(err error) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.state
	r.err = err
	if canTransition(from, StateError) {
		r.state = StateError
		r.history = append(r.history, StateError)
		r.updatedAt = time.Now()
	}
	return from
}

func (r *Run) Session() *browser.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Run) formURLValue() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.formURL
}

func (r *Run) setSession(s *browser.Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

// begin marks work in flight; the returned func ends it.
func (r *Run) begin(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.finished = make(chan struct{})
	done := r.finished
	r.mu.Unlock()
	return runCtx, func() {
		cancel()
		close(done)
	}
}

func (r *Run) abort() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return r.finished
}

// Summary is the terminal report of a fill.
type Summary struct {
	RunID        string                 `json:"run_id"`
	FormURL      string                 `json:"form_url"`
	FieldsFilled int                    `json:"fields_filled"`
	TotalFields  int                    `json:"total_fields"`
	SuccessRatio float64                `json:"success_ratio"`
	Screenshot   string                 `json:"screenshot,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	Matches      []matcher.Match        `json:"matches"`
	Outcomes     []browser.FieldOutcome `json:"outcomes"`
}

// SuccessRate is filled/total, or 0 when total is 0.
func SuccessRate(filled, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total)
}

// SuccessRatePercent renders the ratio with one decimal, e.g. "100.0%".
// An empty fill renders as "0%".
func (s *Summary) SuccessRatePercent() string {
	if s.TotalFields == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", s.SuccessRatio*100)
}

// Status is a point-in-time view of the current run.
type Status struct {
	RunID        string             `json:"run_id,omitempty"`
	State        State              `json:"state"`
	History      []State            `json:"history,omitempty"`
	DocumentType string             `json:"document_type,omitempty"`
	Fields       int                `json:"fields"`
	FormURL      string             `json:"form_url,omitempty"`
	Descriptors  int                `json:"descriptors"`
	SessionState browser.State      `json:"session_state,omitempty"`
	Summary      *Summary           `json:"summary,omitempty"`
	Error        string             `json:"error,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	UpdatedAt    *time.Time         `json:"updated_at,omitempty"`
	Extraction   *extraction.Result `json:"-"`
}

func (r *Run) status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		RunID:       r.ID,
		State:       r.state,
		History:     append([]State(nil), r.history...),
		FormURL:     r.formURL,
		Descriptors: len(r.descriptors),
		Summary:     r.summary,
		Extraction:  r.extraction,
	}
	started, updated := r.StartedAt, r.updatedAt
	st.StartedAt, st.UpdatedAt = &started, &updated
	if r.extraction != nil {
		st.DocumentType = string(r.extraction.DocumentType)
		st.Fields = len(r.extraction.Fields)
	}
	if r.session != nil {
		st.SessionState = r.session.State()
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}
