package thumbnail

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodOptions configure the headless browser renderer.
type RodOptions struct {
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	// LaunchTimeout bounds starting the browser, including a first-run
	// download when Bin is empty.
	LaunchTimeout time.Duration
	// RequestIdle is how long the network must stay quiet before capture.
	RequestIdle time.Duration
	// Bin is an explicit Chrome/Chromium binary; empty lets rod find or
	// download one.
	Bin string
}

// RodRenderer screenshots documents in headless Chrome. The browser is
// launched on first use and shared by every document of a run; each document
// gets its own page.
type RodRenderer struct {
	opts RodOptions
	log  *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	// launchErr is kept so a failed launch is not retried per document.
	launchErr error
}

// DefaultRequestIdle is used when RodOptions.RequestIdle is zero.
const DefaultRequestIdle = 500 * time.Millisecond

var _ Renderer = (*RodRenderer)(nil)

func NewRodRenderer(opts RodOptions, log *zap.Logger) *RodRenderer {
	return &RodRenderer{opts: opts, log: log}
}

func (r *RodRenderer) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}
	if r.launchErr != nil {
		return nil, r.launchErr
	}
	browser, err := r.launch(ctx)
	if err != nil {
		r.launchErr = err
		return nil, err
	}
	r.browser = browser
	return browser, nil
}

func (r *RodRenderer) launch(ctx context.Context) (*rod.Browser, error) {
	timeout := r.opts.LaunchTimeout
	if timeout <= 0 {
		timeout = r.opts.NavigationTimeout
	}
	launchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := launcher.New().Headless(true).NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("hide-scrollbars")
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}
	controlURL, err := l.Context(launchCtx).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome within %s: %w", timeout, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.log.Debug("headless browser started", zap.String("control_url", controlURL))
	r.launcher = l
	return browser, nil
}

// Render opens docPath, waits for the load event, network idle and the
// settle delay, then captures the viewport as PNG. Everything after page
// creation is bounded by the navigation timeout.
func (r *RodRenderer) Render(ctx context.Context, docPath string) ([]byte, error) {
	browser, err := r.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(docPath)
	if err != nil {
		return nil, err
	}
	target := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			r.log.Debug("failed to close page", zap.Error(cerr))
		}
	}()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             r.opts.ViewportWidth,
		Height:            r.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	idle := r.opts.RequestIdle
	if idle <= 0 {
		idle = DefaultRequestIdle
	}
	bounded := page.Context(ctx).Timeout(r.opts.NavigationTimeout + r.opts.SettleDelay)
	waitNetwork := bounded.WaitRequestIdle(idle, nil, nil, nil)
	if err := bounded.Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := bounded.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	waitNetwork()
	if err := bounded.GetContext().Err(); err != nil {
		return nil, fmt.Errorf("wait network idle: %w", err)
	}

	select {
	case <-time.After(r.opts.SettleDelay):
	case <-bounded.GetContext().Done():
		return nil, fmt.Errorf("settle: %w", bounded.GetContext().Err())
	}

	shot, err := bounded.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return shot, nil
}

// Close shuts the browser down. It is safe to call when no browser was
// started.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.launcher.Cleanup()
	r.browser = nil
	r.launcher = nil
	return err
}
