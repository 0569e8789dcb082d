// Package pipeline drives a document-to-form run through extraction,
// probing, matching and the hand-off of a filled browser session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
	"github.com/a3tai/doc-autofill/internal/logger"
	"github.com/a3tai/doc-autofill/internal/matcher"
)

// Extractor derives fields from a document.
type Extractor interface {
	Extract(ctx context.Context, doc *document.Document) (*extraction.Result, error)
}

// Prober enumerates the fields of a form URL.
type Prober interface {
	Probe(ctx context.Context, url string) ([]form.Descriptor, error)
}

// Matcher pairs extracted fields with descriptors.
type Matcher interface {
	Match(fields []extraction.Field, descriptors []form.Descriptor) []matcher.Match
}

// Sessions owns automation sessions.
type Sessions interface {
	Open(ctx context.Context, url string) (*browser.Session, error)
	ApplyMatches(ctx context.Context, s *browser.Session, plan browser.Plan) (*browser.FillReport, error)
	KeepOpen(s *browser.Session) error
	Close(ctx context.Context, s *browser.Session) error
}

// Orchestrator holds at most one run at a time.
type Orchestrator struct {
	extractor Extractor
	prober    Prober
	matcher   Matcher
	sessions  Sessions

	mu  sync.Mutex
	run *Run
}

// New wires an orchestrator from its collaborators.
func New(e Extractor, p Prober, m Matcher, s Sessions) *Orchestrator {
	return &Orchestrator{extractor: e, prober: p, matcher: m, sessions: s}
}

// start claims a run for work that moves it to `to`. A run waiting for a
// form URL is continued by a fill; anything else not busy and holding no
// session is replaced by a fresh run.
func (o *Orchestrator) start(ctx context.Context, to State) (*Run, context.Context, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.run
	switch {
	case r != nil && (r.State().busy() || r.Session() != nil):
		return nil, nil, nil, ErrRunActive
	case r != nil && to == StateFilling && r.State() == StateAwaitingFormURL:
		// continue the reviewed run
	default:
		r = newRun()
		if to == StateFilling {
			_, _ = r.setState(StateAwaitingFormURL)
		}
		o.run = r
	}

	ctx = logger.WithRunID(ctx, r.ID)
	runCtx, end := r.begin(ctx)
	if err := o.advance(ctx, r, to); err != nil {
		end()
		return nil, nil, nil, err
	}
	return r, runCtx, end, nil
}

func (o *Orchestrator) advance(ctx context.Context, r *Run, to State) error {
	from, err := r.setState(to)
	if err != nil {
		return err
	}
	logger.Info(ctx, "run state changed", "from", from, "to", to)
	return nil
}

// abort records a terminal failure. Errors caused by Cancel or Reset are
// marked with ErrCanceled.
func (o *Orchestrator) abort(ctx, runCtx context.Context, r *Run, err error) error {
	if errors.Is(runCtx.Err(), context.Canceled) && !errors.Is(err, ErrCanceled) {
		err = fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	from := r.fail(err)
	logger.Warn(logger.WithRunID(ctx, r.ID), "run failed", "from", from, "error", err)
	return err
}

// Extract starts a new run for doc and leaves it awaiting a form URL.
func (o *Orchestrator) Extract(ctx context.Context, doc *document.Document) (*extraction.Result, error) {
	r, runCtx, end, err := o.start(ctx, StateExtracting)
	if err != nil {
		return nil, err
	}
	defer end()
	ctx = logger.WithRunID(ctx, r.ID)

	res, err := o.extractor.Extract(runCtx, doc)
	if err != nil {
		return nil, o.abort(ctx, runCtx, r, err)
	}
	if err := o.extracted(ctx, r, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) extracted(ctx context.Context, r *Run, res *extraction.Result) error {
	r.mu.Lock()
	r.extraction = res
	r.mu.Unlock()
	if err := o.advance(ctx, r, StateExtracted); err != nil {
		return err
	}
	return o.advance(ctx, r, StateAwaitingFormURL)
}

// Fill probes formURL, matches data onto it, and fills it in a new
// automation session that is left open for the user. data is the
// user-reviewed key/value mapping; it continues a run awaiting a form URL
// or starts a fresh one.
func (o *Orchestrator) Fill(ctx context.Context, formURL string, data map[string]string) (*Summary, error) {
	if !hasValues(data) {
		return nil, ErrNoData
	}
	r, runCtx, end, err := o.start(ctx, StateFilling)
	if err != nil {
		return nil, err
	}
	defer end()
	ctx = logger.WithRunID(ctx, r.ID)

	r.mu.Lock()
	r.formURL = formURL
	fields := fieldsFrom(data, r.extraction)
	r.mu.Unlock()

	descriptors, err := o.prober.Probe(runCtx, formURL)
	if err != nil {
		return nil, o.abort(ctx, runCtx, r, err)
	}
	return o.complete(ctx, runCtx, r, fields, descriptors)
}

// ExtractAndFill runs extraction and probing concurrently, then matches
// and fills in one call.
func (o *Orchestrator) ExtractAndFill(ctx context.Context, doc *document.Document, formURL string) (*extraction.Result, *Summary, error) {
	r, runCtx, end, err := o.start(ctx, StateExtracting)
	if err != nil {
		return nil, nil, err
	}
	defer end()
	ctx = logger.WithRunID(ctx, r.ID)

	r.mu.Lock()
	r.formURL = formURL
	r.mu.Unlock()

	var (
		res         *extraction.Result
		descriptors []form.Descriptor
	)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		var err error
		res, err = o.extractor.Extract(gctx, doc)
		return err
	})
	g.Go(func() error {
		var err error
		descriptors, err = o.prober.Probe(gctx, formURL)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, o.abort(ctx, runCtx, r, err)
	}

	if err := o.extracted(ctx, r, res); err != nil {
		return nil, nil, err
	}
	if err := o.advance(ctx, r, StateFilling); err != nil {
		return nil, nil, err
	}
	summary, err := o.complete(ctx, runCtx, r, res.Fields, descriptors)
	return res, summary, err
}

// complete matches, opens the session and fills it. r is in StateFilling.
func (o *Orchestrator) complete(ctx, runCtx context.Context, r *Run, fields []extraction.Field, descriptors []form.Descriptor) (*Summary, error) {
	matches := o.matcher.Match(fields, descriptors)
	plan := buildPlan(fields, descriptors, matches)
	logger.Info(ctx, "fields matched", "fields", len(fields), "descriptors", len(descriptors), "matches", len(matches))

	target, err := form.NormalizeURL(r.formURLValue())
	if err != nil {
		return nil, o.abort(ctx, runCtx, r, err)
	}
	session, err := o.sessions.Open(runCtx, target)
	if err != nil {
		return nil, o.abort(ctx, runCtx, r, err)
	}
	r.setSession(session)

	report, err := o.sessions.ApplyMatches(runCtx, session, plan)
	if runCtx.Err() != nil {
		o.closeSession(ctx, r, session)
		return nil, o.abort(ctx, runCtx, r, ErrCanceled)
	}
	if err != nil {
		o.closeSession(ctx, r, session)
		return nil, o.abort(ctx, runCtx, r, err)
	}
	if err := o.sessions.KeepOpen(session); err != nil {
		logger.Warn(ctx, "session not handed over", "session_id", session.ID(), "error", err)
	}

	applied := report.Applied()
	final := make([]matcher.Match, len(matches))
	for i, m := range matches {
		m.Applied = applied[m.ExtractedKey]
		final[i] = m
	}
	summary := &Summary{
		RunID:        r.ID,
		FormURL:      target,
		FieldsFilled: report.FieldsFilled,
		TotalFields:  report.TotalFields,
		SuccessRatio: SuccessRate(report.FieldsFilled, report.TotalFields),
		Screenshot:   report.Screenshot,
		SessionID:    session.ID(),
		Matches:      final,
		Outcomes:     report.PerFieldOutcome,
	}

	r.mu.Lock()
	r.descriptors = descriptors
	r.matches = final
	r.summary = summary
	r.mu.Unlock()

	if err := o.advance(ctx, r, StateCompleted); err != nil {
		return nil, err
	}
	go o.watchSession(r, session)
	logger.Info(ctx, "run completed", "fields_filled", summary.FieldsFilled,
		"total_fields", summary.TotalFields, "success_rate", summary.SuccessRatePercent())
	return summary, nil
}

func (o *Orchestrator) closeSession(ctx context.Context, r *Run, s *browser.Session) {
	if err := o.sessions.Close(context.WithoutCancel(ctx), s); err != nil {
		logger.Warn(ctx, "failed to close session", "session_id", s.ID(), "error", err)
	}
	r.setSession(nil)
}

// watchSession releases a completed run once its session closes.
func (o *Orchestrator) watchSession(r *Run, s *browser.Session) {
	<-s.Done()
	o.release(logger.WithRunID(context.Background(), r.ID), r)
}

// release ends r and returns the orchestrator to idle if r is current.
func (o *Orchestrator) release(ctx context.Context, r *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != r {
		return
	}
	r.setSession(nil)
	if err := o.advance(ctx, r, StateIdle); err != nil {
		logger.Debug(ctx, "releasing run", "error", err)
	}
	o.run = nil
}

// CloseSession closes the current run's idle-open session at the user's
// request and releases the run.
func (o *Orchestrator) CloseSession(ctx context.Context) error {
	r := o.current()
	if r == nil {
		return ErrNoRun
	}
	s := r.Session()
	if s == nil {
		return ErrNoSession
	}
	ctx = logger.WithRunID(ctx, r.ID)
	err := o.sessions.Close(ctx, s)
	r.setSession(nil)
	o.release(ctx, r)
	return err
}

// Cancel aborts in-flight extraction or filling, leaving the run in
// StateError, or closes an idle-open session.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	r := o.current()
	if r == nil {
		return ErrNoRun
	}
	if r.State().busy() {
		return o.wait(ctx, r)
	}
	if r.Session() != nil {
		return o.CloseSession(ctx)
	}
	return transitionError(r.State(), StateError)
}

// Reset discards the current run, aborting in-flight work and closing any
// open session first.
func (o *Orchestrator) Reset(ctx context.Context) error {
	r := o.current()
	if r == nil {
		return nil
	}
	ctx = logger.WithRunID(ctx, r.ID)
	if r.State().busy() {
		if err := o.wait(ctx, r); err != nil {
			return err
		}
	}
	if s := r.Session(); s != nil {
		o.closeSession(ctx, r, s)
	}
	o.release(ctx, r)
	return nil
}

func (o *Orchestrator) wait(ctx context.Context, r *Run) error {
	done := r.abort()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) current() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// Status reports the current run, or StateIdle when there is none.
func (o *Orchestrator) Status() Status {
	r := o.current()
	if r == nil {
		return Status{State: StateIdle}
	}
	return r.status()
}

func hasValues(data map[string]string) bool {
	for _, v := range data {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// fieldsFrom turns reviewed values into fields, keeping the extraction's
// display order for known keys and sorting the rest.
func fieldsFrom(data map[string]string, res *extraction.Result) []extraction.Field {
	out := make([]extraction.Field, 0, len(data))
	seen := make(map[string]bool, len(data))
	add := func(key string) {
		v := strings.TrimSpace(data[key])
		if v == "" || seen[key] {
			return
		}
		seen[key] = true
		f := extraction.Field{Key: key, Value: v, Confidence: 1}
		if res != nil {
			if orig, ok := res.Get(key); ok && orig.Value == v {
				f = orig
			}
		}
		out = append(out, f)
	}
	if res != nil {
		for _, k := range res.Keys() {
			if _, ok := data[k]; ok {
				add(k)
			}
		}
	}
	rest := make([]string, 0, len(data))
	for k := range data {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k)
	}
	return out
}

func buildPlan(fields []extraction.Field, descriptors []form.Descriptor, matches []matcher.Match) browser.Plan {
	byLocator := make(map[string]form.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byLocator[d.Locator] = d
	}
	byKey := make(map[string]matcher.Match, len(matches))
	for _, m := range matches {
		byKey[m.ExtractedKey] = m
	}

	var plan browser.Plan
	for _, f := range fields {
		m, ok := byKey[f.Key]
		if !ok {
			plan.Unmatched = append(plan.Unmatched, f.Key)
			continue
		}
		plan.Fills = append(plan.Fills, browser.Fill{
			Key:    f.Key,
			Value:  f.Value,
			Target: byLocator[m.DescriptorLocator],
			Score:  m.Score,
		})
	}
	return plan
}
