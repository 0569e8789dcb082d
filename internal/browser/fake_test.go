package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/a3tai/doc-autofill/internal/form"
)

type call struct {
	op      string
	locator string
	arg     string
}

type fakeWindow struct {
	mu      sync.Mutex
	calls   []call
	values  map[string]string
	checked map[string]bool
	fail    map[string]error
	panicOn string
	// mangle rewrites typed text to simulate inputs that reformat values.
	mangle map[string]string

	navErr   error
	shot     []byte
	shotErr  error
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{
		values:  map[string]string{},
		checked: map[string]bool{},
		fail:    map[string]error{},
		mangle:  map[string]string{},
		shot:    []byte("png"),
		done:    make(chan struct{}),
	}
}

func (w *fakeWindow) record(op, locator, arg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if locator != "" && locator == w.panicOn {
		panic("element detached")
	}
	w.calls = append(w.calls, call{op: op, locator: locator, arg: arg})
	return w.fail[locator]
}

func (w *fakeWindow) Navigate(_ context.Context, url string) error {
	if err := w.record("navigate", "", url); err != nil {
		return err
	}
	return w.navErr
}

func (w *fakeWindow) Type(_ context.Context, locator, text string) error {
	if err := w.record("type", locator, text); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.mangle[locator]; ok {
		text = m
	}
	w.values[locator] = text
	return nil
}

func (w *fakeWindow) SetDate(_ context.Context, locator string, t time.Time) error {
	return w.record("date", locator, t.Format("2006-01-02"))
}

func (w *fakeWindow) Select(_ context.Context, locator string, opt form.Option) error {
	return w.record("select", locator, opt.Label)
}

func (w *fakeWindow) Click(_ context.Context, locator string) error {
	return w.record("click", locator, "")
}

func (w *fakeWindow) Checked(_ context.Context, locator string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checked[locator], nil
}

func (w *fakeWindow) Value(_ context.Context, locator string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.values[locator]
	if !ok {
		return "", errors.New("no value")
	}
	return v, nil
}

func (w *fakeWindow) Screenshot(context.Context) ([]byte, error) {
	return w.shot, w.shotErr
}

func (w *fakeWindow) Done() <-chan struct{} { return w.done }

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.userClose()
	return nil
}

// userClose simulates the user shutting the browser window.
func (w *fakeWindow) userClose() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *fakeWindow) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) callsOf(op string) []call {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []call
	for _, c := range w.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fakeDriver struct {
	window    *fakeWindow
	launchErr error
}

func (d *fakeDriver) Launch(context.Context) (Window, error) {
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	return d.window, nil
}

type memArtifacts struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (a *memArtifacts) Put(_ context.Context, id string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.data == nil {
		a.data = map[string][]byte{}
	}
	a.data[id] = data
	return nil
}
