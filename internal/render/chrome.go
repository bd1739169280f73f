package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"websnatch/internal/config"
	"websnatch/internal/logging"
)

// Chrome renders through headless Chrome via chromedp. With
// pdf.chrome_pool_size > 0 renders go through a shared tab pool,
// otherwise each render launches a throwaway browser.
type Chrome struct {
	cfg config.Config

	poolMu sync.Mutex
	pool   *Pool
}

// NewChrome returns the headless Chrome engine.
func NewChrome(cfg config.Config) *Chrome {
	return &Chrome{cfg: cfg}
}

// Name implements Engine.
func (c *Chrome) Name() string { return EngineChrome }

// Pool returns the shared tab pool, creating it on first use. It returns
// nil without error when pooling is disabled.
func (c *Chrome) Pool() (*Pool, error) {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()

	if c.cfg.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if c.pool != nil {
		return c.pool, nil
	}
	pool, err := NewPool(c.cfg)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return c.pool, nil
}

// Close shuts down the tab pool if one was created.
func (c *Chrome) Close() {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if c.pool != nil {
		c.pool.Close()
	}
}

// Render implements Engine.
func (c *Chrome) Render(ctx context.Context, job Job) ([]byte, error) {
	pool, err := c.Pool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return c.renderOneOff(ctx, job)
	}

	timeout := time.Duration(c.cfg.PDF.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(ctx, 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		tabCtx, cancel := context.WithTimeout(tab.Ctx, timeout)
		pdfBuf, renderErr := renderInTab(tabCtx, job)
		cancel()

		pool.Release(tab, renderErr)
		return pdfBuf, renderErr
	}

	pdfBuf, renderErr := runOnce()
	if renderErr != nil && IsSessionInterrupted(renderErr) {
		logging.Warn("chrome session interrupted; restarting pool and retrying once", "error", renderErr.Error())
		_ = pool.Restart()
		return runOnce()
	}
	return pdfBuf, renderErr
}

// renderOneOff starts a fresh Chrome instance for a single render.
func (c *Chrome) renderOneOff(ctx context.Context, job Job) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("render: create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(c.cfg, tmpDir)...)
	defer allocCancel()

	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(c.cfg.PDF.TimeoutSecs) * time.Second
	chromeCtx, cancel = context.WithTimeout(chromeCtx, timeout)
	defer cancel()

	return renderInTab(chromeCtx, job)
}

// allocatorOptions assembles the exec allocator flags shared by the
// one-off path and the pool.
func allocatorOptions(cfg config.Config, profileDir string) []chromedp.ExecAllocatorOption {
	// Force software rendering; Vulkan and ANGLE are unreliable in
	// minimal container environments.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// renderInTab renders the job inside an existing chromedp context. A URL
// job navigates to the page; an HTML job is injected into about:blank.
func renderInTab(ctx context.Context, job Job) ([]byte, error) {
	var pdfBuf []byte
	var actions []chromedp.Action

	if job.URL != "" {
		actions = append(actions,
			chromedp.Navigate(job.URL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	} else {
		actions = append(actions,
			chromedp.Navigate("about:blank"),
			chromedp.ActionFunc(func(ctx context.Context) error {
				frame, err := page.GetFrameTree().Do(ctx)
				if err != nil {
					return err
				}
				return page.SetDocumentContent(frame.Frame.ID, job.HTML).Do(ctx)
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}

	width, height := pageGeometry(job)
	actions = append(actions,
		chromedp.Sleep(settleDelay(job)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(width).
				WithPaperHeight(height).
				WithMarginTop(job.Margin).
				WithMarginBottom(job.Margin).
				WithMarginLeft(job.Margin).
				WithMarginRight(job.Margin).
				Do(ctx)
			return err
		}),
	)

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	if !IsPDF(pdfBuf) {
		return nil, ErrNoPDF
	}
	return pdfBuf, nil
}

// pageGeometry returns the paper dimensions in inches, swapped for
// landscape jobs.
func pageGeometry(job Job) (width, height float64) {
	width, height = job.Paper.Width, job.Paper.Height
	if job.Orientation == OrientationLandscape {
		width, height = height, width
	}
	return width, height
}

// settleDelay gives scripts time to run before printing, standing in for
// wkhtmltopdf's --javascript-delay.
func settleDelay(job Job) time.Duration {
	if job.JavascriptDelay > 0 {
		return job.JavascriptDelay
	}
	return 200 * time.Millisecond
}

// IsSessionInterrupted reports whether err looks like a lost Chrome
// session rather than a render failure.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "browser closed") ||
		strings.Contains(msg, "websocket: close")
}
