package form

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConfig configures the headless probing browser.
type RodConfig struct {
	Bin               string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	DOMReadyTimeout   time.Duration
}

// RodSnapshotter loads pages in a dedicated, short-lived Chrome process.
type RodSnapshotter struct {
	cfg RodConfig
}

// NewRodSnapshotter creates a snapshotter that launches Chrome per probe.
// Zero timeouts fall back to 60s navigation and 10s DOM readiness.
func NewRodSnapshotter(cfg RodConfig) *RodSnapshotter {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.DOMReadyTimeout <= 0 {
		cfg.DOMReadyTimeout = 10 * time.Second
	}
	return &RodSnapshotter{cfg: cfg}
}

// Snapshot launches a browser, navigates, waits for the load event and a
// quiet DOM, and returns the serialized document. The browser process is
// always torn down before returning.
func (r *RodSnapshotter) Snapshot(ctx context.Context, url string) (*Snapshot, error) {
	l := launcher.New().Context(ctx).Headless(r.cfg.Headless)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	defer func() { _ = browser.Close() }()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if r.cfg.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent})
	}

	if err := page.Context(ctx).Timeout(r.cfg.NavigationTimeout).Navigate(url); err != nil {
		return nil, navigationError(url, err)
	}
	if err := page.Context(ctx).Timeout(r.cfg.DOMReadyTimeout).WaitLoad(); err != nil {
		return nil, navigationError(url, err)
	}
	// Script-rendered forms keep building after load; settle briefly.
	_ = page.Context(ctx).Timeout(r.cfg.DOMReadyTimeout).WaitDOMStable(300*time.Millisecond, 0)

	source, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read dom: %w", err)
	}
	final := url
	if info, err := page.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	return &Snapshot{URL: final, HTML: source}, nil
}

func navigationError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProbeError{Reason: Timeout, URL: url, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProbeError{Reason: UnreachableURL, URL: url, Err: err}
}
