package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeEngine renders pages in a headless Chrome instance. A disconnected
// browser is relaunched on the next capture.
type ChromeEngine struct {
	sandbox bool
	logger  *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeEngine creates an engine; the browser starts lazily
func NewChromeEngine(sandbox bool, logger *zap.Logger) *ChromeEngine {
	return &ChromeEngine{sandbox: sandbox, logger: logger}
}

// ChromeFactory returns an EngineFactory producing Chrome engines
func ChromeFactory(sandbox bool, logger *zap.Logger) EngineFactory {
	return func() (Engine, error) {
		return NewChromeEngine(sandbox, logger), nil
	}
}

func (e *ChromeEngine) ensureBrowser() error {
	if e.browserCtx != nil && e.browserCtx.Err() == nil {
		return nil
	}
	if e.browserCtx != nil {
		e.logger.Warn("Browser disconnected, relaunching")
		e.Close()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("hide-scrollbars", true))
	if !e.sandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	e.allocCancel = allocCancel
	e.browserCtx = browserCtx
	e.browserCancel = browserCancel

	e.logger.Info("Launched headless browser", zap.Bool("sandbox", e.sandbox))
	return nil
}

// Capture loads html into a new tab sized to the viewport and screenshots it
func (e *ChromeEngine) Capture(ctx context.Context, html string, width, height int) (image.Image, error) {
	if err := e.ensureBrowser(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var screenshot []byte
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&screenshot),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to capture page: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// Close shuts the browser down
func (e *ChromeEngine) Close() error {
	if e.browserCancel != nil {
		e.browserCancel()
	}
	if e.allocCancel != nil {
		e.allocCancel()
	}
	e.browserCtx, e.browserCancel, e.allocCancel = nil, nil, nil
	return nil
}
