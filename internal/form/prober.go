package form

import (
	"context"
	"errors"

	"github.com/a3tai/doc-autofill/internal/logger"
)

// Snapshot is the rendered DOM of a loaded page.
type Snapshot struct {
	URL  string
	HTML string
}

// Snapshotter loads a URL in a fresh, throwaway browser context and returns
// its rendered DOM. Implementations must release every browser resource
// before returning, and should report failures as *ProbeError.
type Snapshotter interface {
	Snapshot(ctx context.Context, url string) (*Snapshot, error)
}

// Prober enumerates the fillable fields of a form URL.
type Prober struct {
	snapshotter Snapshotter
}

// NewProber creates a prober backed by s.
func NewProber(s Snapshotter) *Prober {
	return &Prober{snapshotter: s}
}

// Probe loads url and returns its descriptors. A fresh context is used on
// every call; results are never cached.
func (p *Prober) Probe(ctx context.Context, rawURL string) ([]Descriptor, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, &ProbeError{Reason: UnreachableURL, URL: rawURL, Err: err}
	}

	snap, err := p.snapshotter.Snapshot(ctx, target)
	if err != nil {
		return nil, classify(target, err)
	}

	descriptors, err := Describe(snap.HTML)
	if err != nil {
		return nil, &ProbeError{Reason: UnreachableURL, URL: target, Err: err}
	}

	fillable := 0
	for _, d := range descriptors {
		if d.Fillable() {
			fillable++
		}
	}
	logger.Info(ctx, "form probed", "url", target, "descriptors", len(descriptors), "fillable", fillable)
	if fillable == 0 {
		return nil, &ProbeError{Reason: NoFillableFields, URL: target}
	}
	return descriptors, nil
}

func classify(url string, err error) error {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProbeError{Reason: Timeout, URL: url, Err: err}
	}
	return &ProbeError{Reason: UnreachableURL, URL: url, Err: err}
}
