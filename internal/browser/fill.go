package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/a3tai/doc-autofill/internal/form"
)

// Outcome is the per-field result of applying a plan.
type Outcome string

const (
	OutcomeFilled    Outcome = "filled"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeUnmatched Outcome = "unmatched"
)

// Fill is one value destined for one descriptor.
type Fill struct {
	Key    string
	Value  string
	Target form.Descriptor
	Score  float64
}

// Plan is the work handed to ApplyMatches. Unmatched keys are reported
// but never written.
type Plan struct {
	Fills     []Fill
	Unmatched []string
}

// Total returns the number of extracted fields the plan accounts for.
func (p Plan) Total() int { return len(p.Fills) + len(p.Unmatched) }

// FieldOutcome records what happened to one extracted key.
type FieldOutcome struct {
	Key     string  `json:"key"`
	Locator string  `json:"locator,omitempty"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// FillReport summarises an ApplyMatches call. Screenshot is the artifact
// identifier, empty when no screenshot could be stored.
type FillReport struct {
	FieldsFilled    int            `json:"fields_filled"`
	TotalFields     int            `json:"total_fields"`
	PerFieldOutcome []FieldOutcome `json:"per_field_outcome"`
	Screenshot      string         `json:"screenshot,omitempty"`
}

// Applied returns the keys whose values were written.
func (r *FillReport) Applied() map[string]bool {
	out := make(map[string]bool, r.FieldsFilled)
	for _, o := range r.PerFieldOutcome {
		if o.Outcome == OutcomeFilled {
			out[o.Key] = true
		}
	}
	return out
}

var (
	errNotDate       = errors.New("value is not a recognisable date")
	errNoOption      = errors.New("no option matches the value")
	errNoLocator     = errors.New("matching option has no locator")
	errNotAffirmed   = errors.New("value does not tick a checkbox")
	errValueMismatch = errors.New("field value differs after typing")
)

// fill writes value into d using the input method its control needs.
func fill(ctx context.Context, w Window, d form.Descriptor, value string) error {
	switch d.Control {
	case form.ControlInput, form.ControlTextarea, form.ControlEditable:
		if d.Kind == form.KindDate && d.Control == form.ControlInput {
			t, ok := form.ParseDate(value)
			if !ok {
				return errNotDate
			}
			return w.SetDate(ctx, d.Locator, t)
		}
		if err := w.Type(ctx, d.Locator, value); err != nil {
			return err
		}
		return verify(ctx, w, d.Locator, value)

	case form.ControlSelect:
		opt, ok := d.OptionFor(value)
		if !ok {
			return errNoOption
		}
		return w.Select(ctx, d.Locator, opt)

	case form.ControlChoices, form.ControlListbox:
		opt, ok := d.OptionFor(value)
		if !ok {
			return errNoOption
		}
		if opt.Locator == "" {
			return errNoLocator
		}
		// Listboxes only render their options once opened.
		if d.Control == form.ControlListbox {
			if err := w.Click(ctx, d.Locator); err != nil {
				return err
			}
		}
		return w.Click(ctx, opt.Locator)

	case form.ControlToggle:
		if !form.Truthy(value) {
			return errNotAffirmed
		}
		on, err := w.Checked(ctx, d.Locator)
		if err != nil {
			return err
		}
		if on {
			return nil
		}
		return w.Click(ctx, d.Locator)
	}
	return fmt.Errorf("unsupported control %q", d.Control)
}

// verify re-reads a typed value. A read failure is not a fill failure.
func verify(ctx context.Context, w Window, locator, want string) error {
	got, err := w.Value(ctx, locator)
	if err != nil {
		return nil
	}
	if strings.TrimSpace(got) != strings.TrimSpace(want) {
		return fmt.Errorf("%w: got %q", errValueMismatch, got)
	}
	return nil
}
