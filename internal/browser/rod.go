package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/a3tai/doc-autofill/internal/form"
)

// RodConfig configures the visible automation browser.
type RodConfig struct {
	Bin               string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	NavigationTimeout time.Duration
	// ActionTimeout bounds the DOM-ready wait and each element lookup.
	ActionTimeout time.Duration
}

// RodDriver launches Chrome through go-rod.
type RodDriver struct {
	cfg RodConfig
}

// NewRodDriver creates a driver with cfg, filling zero values with
// 1280x1024, a 60s navigation timeout and a 10s action timeout.
func NewRodDriver(cfg RodConfig) *RodDriver {
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = 1280, 1024
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	return &RodDriver{cfg: cfg}
}

// Launch starts a browser process owned by the returned window. The
// process is tied to its own context, not ctx, so it survives the request
// that opened it.
func (d *RodDriver) Launch(ctx context.Context) (Window, error) {
	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	l := launcher.New().
		Context(bctx).
		Headless(d.cfg.Headless).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", d.cfg.ViewportWidth, d.cfg.ViewportHeight))
	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}

	w := &rodWindow{cfg: d.cfg, launcher: l, cancel: cancel, done: make(chan struct{})}

	controlURL, err := l.Launch()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	w.browser = rod.New().ControlURL(controlURL).Context(bctx)
	if err := w.browser.Connect(); err != nil {
		w.teardown()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	_ = proto.TargetSetDiscoverTargets{Discover: true}.Call(w.browser)

	w.page, err = w.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		w.teardown()
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.ViewportWidth,
		Height:            d.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(w.page); err != nil {
		w.teardown()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if d.cfg.UserAgent != "" {
		_ = w.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent})
	}

	target := w.page.TargetID
	wait := w.browser.EachEvent(func(e *proto.TargetTargetDestroyed) bool {
		return e.TargetID == target
	})
	go func() {
		wait()
		w.closeDone()
	}()
	return w, nil
}

type rodWindow struct {
	cfg      RodConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	cancel   context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	tearOnce sync.Once
}

func (w *rodWindow) Navigate(ctx context.Context, url string) error {
	if err := w.page.Context(ctx).Timeout(w.cfg.NavigationTimeout).Navigate(url); err != nil {
		return err
	}
	if err := w.page.Context(ctx).Timeout(w.cfg.ActionTimeout).WaitLoad(); err != nil {
		return err
	}
	_ = w.page.Context(ctx).Timeout(w.cfg.ActionTimeout).WaitDOMStable(300*time.Millisecond, 0)
	return nil
}

func (w *rodWindow) element(ctx context.Context, locator string) (*rod.Element, error) {
	el, err := w.page.Context(ctx).Timeout(w.cfg.ActionTimeout).Element(locator)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", locator, err)
	}
	return el.Context(ctx), nil
}

func (w *rodWindow) Type(ctx context.Context, locator, text string) error {
	el, err := w.element(ctx, locator)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (w *rodWindow) SetDate(ctx context.Context, locator string, t time.Time) error {
	el, err := w.element(ctx, locator)
	if err != nil {
		return err
	}
	return el.InputTime(t)
}

func (w *rodWindow) Select(ctx context.Context, locator string, opt form.Option) error {
	el, err := w.element(ctx, locator)
	if err != nil {
		return err
	}
	if opt.Value != "" {
		return el.Select([]string{fmt.Sprintf("option[value=%q]", opt.Value)}, true, rod.SelectorTypeCSSSector)
	}
	return el.Select([]string{opt.Label}, true, rod.SelectorTypeText)
}

func (w *rodWindow) Click(ctx context.Context, locator string) error {
	el, err := w.element(ctx, locator)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (w *rodWindow) Checked(ctx context.Context, locator string) (bool, error) {
	el, err := w.element(ctx, locator)
	if err != nil {
		return false, err
	}
	if prop, err := el.Property("checked"); err == nil && prop.Bool() {
		return true, nil
	}
	aria, err := el.Attribute("aria-checked")
	if err != nil {
		return false, err
	}
	return aria != nil && *aria == "true", nil
}

func (w *rodWindow) Value(ctx context.Context, locator string) (string, error) {
	el, err := w.element(ctx, locator)
	if err != nil {
		return "", err
	}
	prop, err := el.Property("value")
	if err != nil {
		return "", err
	}
	if prop.Nil() {
		return el.Text()
	}
	return prop.Str(), nil
}

func (w *rodWindow) Screenshot(ctx context.Context) ([]byte, error) {
	return w.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (w *rodWindow) Done() <-chan struct{} { return w.done }

func (w *rodWindow) Close() error {
	var err error
	if w.browser != nil {
		err = w.browser.Close()
	}
	w.teardown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *rodWindow) teardown() {
	w.tearOnce.Do(func() {
		w.launcher.Kill()
		w.launcher.Cleanup()
		w.cancel()
		w.closeDone()
	})
}

func (w *rodWindow) closeDone() {
	w.doneOnce.Do(func() { close(w.done) })
}
