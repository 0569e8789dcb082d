package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
	"github.com/a3tai/doc-autofill/internal/matcher"
)

const formURL = "https://forms.example.com/apply"

var ashaForm = []form.Descriptor{
	{Locator: "#full-name", Label: "Full Name", Kind: form.KindText, Control: form.ControlInput},
	{Locator: "#dob", Label: "Date of Birth", Kind: form.KindText, Control: form.ControlInput},
}

func ashaResult() *extraction.Result {
	return &extraction.Result{
		DocumentType: extraction.DocumentTypeAadhaar,
		Fields: []extraction.Field{
			{Key: "name", Value: "Asha Rao", Confidence: 0.6},
			{Key: "dob", Value: "1990-01-01", Confidence: 0.9},
		},
	}
}

type harness struct {
	o      *Orchestrator
	driver *driver
	shots  *shots
}

func newHarness(e stubExtractor, p stubProber) *harness {
	d := &driver{}
	s := &shots{}
	return &harness{
		o:      New(e, p, matcher.New(matcher.Config{}), browser.NewManager(d, s)),
		driver: d,
		shots:  s,
	}
}

func okExtractor(res *extraction.Result) stubExtractor {
	return func(context.Context, *document.Document) (*extraction.Result, error) { return res, nil }
}

func okProber(descs []form.Descriptor) stubProber {
	return func(context.Context, string) ([]form.Descriptor, error) { return descs, nil }
}

func testDoc(t *testing.T) *document.Document {
	t.Helper()
	doc, err := document.New("card.pdf", document.MediaTypePDF, []byte("%PDF-1.4"), 0)
	require.NoError(t, err)
	return doc
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.Eventually(t, func() bool { return o.Status().State == StateIdle }, 2*time.Second, 10*time.Millisecond)
}

func TestFill_NameAndDateOfBirth(t *testing.T) {
	h := newHarness(okExtractor(ashaResult()), okProber(ashaForm))

	summary, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "Asha Rao", "dob": "1990-01-01"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FieldsFilled)
	assert.Equal(t, 2, summary.TotalFields)
	assert.Equal(t, 1.0, summary.SuccessRatio)
	assert.Equal(t, "100.0%", summary.SuccessRatePercent())
	assert.NotEmpty(t, summary.Screenshot)
	assert.Equal(t, []string{summary.Screenshot}, h.shots.ids)
	require.Len(t, summary.Matches, 2)
	for _, m := range summary.Matches {
		assert.True(t, m.Applied, m.ExtractedKey)
	}

	st := h.o.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, browser.StateIdleOpen, st.SessionState)
	assert.Equal(t, []State{StateIdle, StateAwaitingFormURL, StateFilling, StateCompleted}, st.History)
	assert.False(t, h.driver.last().isClosed())
	assert.Equal(t, "Asha Rao", h.driver.last().values["#full-name"])
}

func TestExtractThenFill_SameRun(t *testing.T) {
	h := newHarness(okExtractor(ashaResult()), okProber(ashaForm))
	ctx := context.Background()

	res, err := h.o.Extract(ctx, testDoc(t))
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", res.Map()["name"])

	st := h.o.Status()
	assert.Equal(t, StateAwaitingFormURL, st.State)
	assert.Equal(t, 2, st.Fields)
	assert.Equal(t, "aadhaar", st.DocumentType)
	runID := st.RunID

	// The user corrects the date before filling.
	summary, err := h.o.Fill(ctx, formURL, map[string]string{"name": "Asha Rao", "dob": "1990-01-02"})
	require.NoError(t, err)
	assert.Equal(t, runID, summary.RunID)
	assert.Equal(t, "1990-01-02", h.driver.last().values["#dob"])
	assert.Equal(t, []State{StateIdle, StateExtracting, StateExtracted, StateAwaitingFormURL, StateFilling, StateCompleted},
		h.o.Status().History)
}

func TestFill_UnreachableURL(t *testing.T) {
	h := newHarness(nil, func(_ context.Context, url string) ([]form.Descriptor, error) {
		return nil, &form.ProbeError{Reason: form.UnreachableURL, URL: url, Err: errors.New("dns")}
	})

	_, err := h.o.Fill(context.Background(), "https://nowhere.invalid", map[string]string{"name": "Asha Rao"})
	require.Error(t, err)
	reason, ok := form.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, form.UnreachableURL, reason)

	st := h.o.Status()
	assert.Equal(t, StateError, st.State)
	assert.NotEmpty(t, st.Error)
	assert.Zero(t, h.driver.launches.Load(), "no browser may be left running")

	require.NoError(t, h.o.Reset(context.Background()))
	assert.Equal(t, StateIdle, h.o.Status().State)
}

func TestFill_NoMatchingDescriptors(t *testing.T) {
	h := newHarness(nil, okProber([]form.Descriptor{
		{Locator: "#colour", Label: "Favourite colour", Kind: form.KindText, Control: form.ControlInput},
	}))

	summary, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "Asha Rao", "dob": "1990-01-01"})
	require.NoError(t, err)
	assert.Zero(t, summary.FieldsFilled)
	assert.Equal(t, 2, summary.TotalFields)
	assert.Zero(t, summary.SuccessRatio)
	assert.Equal(t, StateCompleted, h.o.Status().State)
	assert.Equal(t, browser.StateIdleOpen, h.o.Status().SessionState)
}

func TestFill_NoData(t *testing.T) {
	h := newHarness(nil, okProber(ashaForm))
	_, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "  "})
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, StateIdle, h.o.Status().State)
}

func TestExtract_Failure(t *testing.T) {
	h := newHarness(func(context.Context, *document.Document) (*extraction.Result, error) {
		return nil, &extraction.Error{Reason: extraction.NoFieldsFound}
	}, nil)

	_, err := h.o.Extract(context.Background(), testDoc(t))
	reason, ok := extraction.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, extraction.NoFieldsFound, reason)
	assert.Equal(t, StateError, h.o.Status().State)

	// A failed run does not block a retry.
	_, err = h.o.Extract(context.Background(), testDoc(t))
	assert.NotErrorIs(t, err, ErrRunActive)
}

func TestRunActiveWhileSessionOpen(t *testing.T) {
	h := newHarness(okExtractor(ashaResult()), okProber(ashaForm))
	ctx := context.Background()

	_, err := h.o.Fill(ctx, formURL, map[string]string{"name": "Asha Rao"})
	require.NoError(t, err)

	_, err = h.o.Extract(ctx, testDoc(t))
	assert.ErrorIs(t, err, ErrRunActive)
	_, err = h.o.Fill(ctx, formURL, map[string]string{"name": "Asha Rao"})
	assert.ErrorIs(t, err, ErrRunActive)

	require.NoError(t, h.o.CloseSession(ctx))
	assert.True(t, h.driver.last().isClosed())
	assert.Equal(t, StateIdle, h.o.Status().State)

	_, err = h.o.Extract(ctx, testDoc(t))
	assert.NoError(t, err)
}

func TestUserClosingWindowReleasesRun(t *testing.T) {
	h := newHarness(nil, okProber(ashaForm))
	_, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "Asha Rao"})
	require.NoError(t, err)

	h.driver.last().userClose()
	waitIdle(t, h.o)
}

func TestCancelDuringFilling(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(nil, func(ctx context.Context, _ string) ([]form.Descriptor, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	errc := make(chan error, 1)
	go func() {
		_, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "Asha Rao"})
		errc <- err
	}()
	<-started
	assert.Equal(t, StateFilling, h.o.Status().State)

	require.NoError(t, h.o.Cancel(context.Background()))
	assert.ErrorIs(t, <-errc, ErrCanceled)
	assert.Equal(t, StateError, h.o.Status().State)
	assert.Zero(t, h.driver.launches.Load())
}

func TestCancelIdleOpenClosesSession(t *testing.T) {
	h := newHarness(nil, okProber(ashaForm))
	_, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "Asha Rao"})
	require.NoError(t, err)

	require.NoError(t, h.o.Cancel(context.Background()))
	assert.True(t, h.driver.last().isClosed())
	assert.Equal(t, StateIdle, h.o.Status().State)
}

func TestResetDuringExtraction(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(func(ctx context.Context, _ *document.Document) (*extraction.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := h.o.Extract(context.Background(), testDoc(t))
		errc <- err
	}()
	<-started

	require.NoError(t, h.o.Reset(context.Background()))
	assert.ErrorIs(t, <-errc, ErrCanceled)
	assert.Equal(t, StateIdle, h.o.Status().State)
}

func TestResetClosesSession(t *testing.T) {
	h := newHarness(nil, okProber(ashaForm))
	_, err := h.o.Fill(context.Background(), formURL, map[string]string{"name": "Asha Rao"})
	require.NoError(t, err)

	require.NoError(t, h.o.Reset(context.Background()))
	assert.True(t, h.driver.last().isClosed())
	assert.Equal(t, StateIdle, h.o.Status().State)
	require.NoError(t, h.o.Reset(context.Background()))
}

func TestExtractAndFill_Concurrent(t *testing.T) {
	probing := make(chan struct{})
	h := newHarness(
		func(ctx context.Context, _ *document.Document) (*extraction.Result, error) {
			select {
			case <-probing:
				return ashaResult(), nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("probe never started alongside extraction")
			}
		},
		func(context.Context, string) ([]form.Descriptor, error) {
			close(probing)
			return ashaForm, nil
		},
	)

	res, summary, err := h.o.ExtractAndFill(context.Background(), testDoc(t), formURL)
	require.NoError(t, err)
	assert.Len(t, res.Fields, 2)
	assert.Equal(t, 2, summary.FieldsFilled)
	assert.Equal(t, StateCompleted, h.o.Status().State)
}

func TestExtractAndFill_ProbeFailureStopsExtraction(t *testing.T) {
	h := newHarness(
		func(ctx context.Context, _ *document.Document) (*extraction.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(_ context.Context, url string) ([]form.Descriptor, error) {
			return nil, &form.ProbeError{Reason: form.Timeout, URL: url}
		},
	)

	_, _, err := h.o.ExtractAndFill(context.Background(), testDoc(t), formURL)
	assert.ErrorIs(t, err, &form.ProbeError{Reason: form.Timeout})
	assert.Equal(t, StateError, h.o.Status().State)
	assert.Zero(t, h.driver.launches.Load())
}

func TestNoRunErrors(t *testing.T) {
	h := newHarness(nil, nil)
	assert.ErrorIs(t, h.o.Cancel(context.Background()), ErrNoRun)
	assert.ErrorIs(t, h.o.CloseSession(context.Background()), ErrNoRun)
	assert.NoError(t, h.o.Reset(context.Background()))

	h = newHarness(okExtractor(ashaResult()), nil)
	_, err := h.o.Extract(context.Background(), testDoc(t))
	require.NoError(t, err)
	assert.ErrorIs(t, h.o.CloseSession(context.Background()), ErrNoSession)
	assert.ErrorIs(t, h.o.Cancel(context.Background()), ErrInvalidTransition)
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		filled, total int
		ratio         float64
		percent       string
	}{
		{2, 2, 1, "100.0%"},
		{1, 3, 1.0 / 3, "33.3%"},
		{0, 4, 0, "0.0%"},
		{0, 0, 0, "0%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ratio, SuccessRate(tt.filled, tt.total))
		s := Summary{FieldsFilled: tt.filled, TotalFields: tt.total, SuccessRatio: SuccessRate(tt.filled, tt.total)}
		assert.Equal(t, tt.percent, s.SuccessRatePercent())
	}
}

func TestTransitions(t *testing.T) {
	assert.True(t, canTransition(StateIdle, StateExtracting))
	assert.True(t, canTransition(StateFilling, StateError))
	assert.True(t, canTransition(StateCompleted, StateIdle))
	assert.False(t, canTransition(StateCompleted, StateError))
	assert.False(t, canTransition(StateIdle, StateFilling))
	assert.False(t, canTransition(StateExtracting, StateFilling))

	r := newRun()
	_, err := r.setState(StateCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFieldsFrom(t *testing.T) {
	got := fieldsFrom(map[string]string{"zeta": "z", "dob": "1990-01-01", "name": "Asha Rao", "empty": ""}, ashaResult())
	keys := make([]string, len(got))
	for i, f := range got {
		keys[i] = f.Key
	}
	assert.Equal(t, []string{"name", "dob", "zeta"}, keys)
	assert.Equal(t, 0.6, got[0].Confidence)
	assert.Equal(t, 1.0, got[2].Confidence)
}
