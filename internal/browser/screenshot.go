// File: internal/browser/screenshot.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfarer-cli/internal/config"
)

// ScreenshotCapturer renders page images for observations.
type ScreenshotCapturer interface {
	Start(ctx context.Context) error
	Capture(ctx context.Context, pageURL string) ([]byte, error)
	Close(ctx context.Context) error
}

// ChromeCapturer renders screenshots through a shared headless Chrome
// instance. The HTTP session owns all navigation state; the capturer only
// re-renders URLs, so it stays stateless between captures.
type ChromeCapturer struct {
	cfg    *config.Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

func NewChromeCapturer(cfg *config.Config, logger *zap.Logger) *ChromeCapturer {
	return &ChromeCapturer{
		cfg:    cfg,
		logger: logger.Named("screenshot"),
	}
}

// Start launches the headless browser.
func (c *ChromeCapturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(c.cfg.Browser.UserAgent),
		chromedp.WindowSize(c.cfg.Browser.ViewportWidth, c.cfg.Browser.ViewportHeight),
	)
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	c.browserCtx, c.browserStop = chromedp.NewContext(c.allocCtx)

	// Starting the browser eagerly surfaces launch failures here instead of
	// on the first capture.
	if err := chromedp.Run(c.browserCtx); err != nil {
		c.closeLocked()
		return fmt.Errorf("failed to launch headless browser: %w", err)
	}
	c.logger.Info("Headless browser started for screenshot capture.")
	return nil
}

// Capture renders the given URL and returns a PNG of the viewport.
func (c *ChromeCapturer) Capture(ctx context.Context, pageURL string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx == nil {
		return nil, fmt.Errorf("capturer not started")
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	defer cancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, c.cfg.Network.NavigationTimeout)
	defer timeoutCancel()

	var buf []byte
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(
			int64(c.cfg.Browser.ViewportWidth),
			int64(c.cfg.Browser.ViewportHeight),
			1.0, false,
		),
		chromedp.Navigate(pageURL),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("screenshot of %q failed: %w", pageURL, err)
	}
	return buf, nil
}

// Close shuts the headless browser down.
func (c *ChromeCapturer) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *ChromeCapturer) closeLocked() {
	if c.browserStop != nil {
		c.browserStop()
		c.browserStop = nil
		c.browserCtx = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
		c.allocCtx = nil
	}
}
