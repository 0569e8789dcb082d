package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
)

type stubExtractor func(ctx context.Context, doc *document.Document) (*extraction.Result, error)

func (f stubExtractor) Extract(ctx context.Context, doc *document.Document) (*extraction.Result, error) {
	return f(ctx, doc)
}

type stubProber func(ctx context.Context, url string) ([]form.Descriptor, error)

func (f stubProber) Probe(ctx context.Context, url string) ([]form.Descriptor, error) {
	return f(ctx, url)
}

type window struct {
	mu       sync.Mutex
	values   map[string]string
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func (w *window) Navigate(context.Context, string) error { return nil }

func (w *window) Type(_ context.Context, locator, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values[locator] = text
	return nil
}

func (w *window) SetDate(context.Context, string, time.Time) error  { return nil }
func (w *window) Select(context.Context, string, form.Option) error { return nil }
func (w *window) Click(context.Context, string) error               { return nil }
func (w *window) Checked(context.Context, string) (bool, error)     { return false, nil }
func (w *window) Screenshot(context.Context) ([]byte, error)        { return []byte("png"), nil }
func (w *window) Done() <-chan struct{}                             { return w.done }

func (w *window) Value(_ context.Context, locator string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.values[locator]
	if !ok {
		return "", errors.New("no value")
	}
	return v, nil
}

func (w *window) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.userClose()
	return nil
}

func (w *window) userClose() { w.doneOnce.Do(func() { close(w.done) }) }

func (w *window) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type driver struct {
	launches atomic.Int32
	mu       sync.Mutex
	windows  []*window
}

func (d *driver) Launch(context.Context) (browser.Window, error) {
	d.launches.Add(1)
	w := &window{values: map[string]string{}, done: make(chan struct{})}
	d.mu.Lock()
	d.windows = append(d.windows, w)
	d.mu.Unlock()
	return w, nil
}

func (d *driver) last() *window {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.windows) == 0 {
		return nil
	}
	return d.windows[len(d.windows)-1]
}

type shots struct {
	mu  sync.Mutex
	ids []string
}

func (s *shots) Put(_ context.Context, id string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return nil
}
