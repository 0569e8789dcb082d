package browser

import (
	"context"
	"time"

	"github.com/a3tai/doc-autofill/internal/form"
)

// Driver launches browser windows for automation sessions.
type Driver interface {
	// Launch starts a browser and returns its single window. On error
	// nothing may be left running.
	Launch(ctx context.Context) (Window, error)
}

// Window is one live, human-visible browser window. Locators are CSS
// selectors as produced by form.Describe. The context passed to each
// method bounds that call only; the window itself lives until Close.
type Window interface {
	Navigate(ctx context.Context, url string) error
	// Type replaces the element's content with text.
	Type(ctx context.Context, locator, text string) error
	SetDate(ctx context.Context, locator string, t time.Time) error
	Select(ctx context.Context, locator string, opt form.Option) error
	Click(ctx context.Context, locator string) error
	Checked(ctx context.Context, locator string) (bool, error)
	Value(ctx context.Context, locator string) (string, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Done is closed when the window goes away, whether the user closed it
	// or Close was called.
	Done() <-chan struct{}
	Close() error
}

// Artifacts receives copied-out screenshots.
type Artifacts interface {
	Put(ctx context.Context, id string, data []byte) error
}
