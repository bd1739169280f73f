package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"websnatch/internal/config"
	"websnatch/internal/logging"
)

var (
	// ErrPoolDisabled is returned by NewPool when pdf.chrome_pool_size
	// is not positive.
	ErrPoolDisabled = errors.New("render: chrome pool disabled")

	// ErrPoolClosed is returned when acquiring from or restarting a
	// closed pool.
	ErrPoolClosed = errors.New("render: chrome pool closed")
)

// Tab is one leased browser tab. Ctx carries the chromedp session; the
// tab is torn down on Release and never reused.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool bounds the number of concurrent tabs in one shared browser.
// Chrome itself starts lazily on the first render.
type Pool struct {
	cfg config.Config
	sem chan struct{}

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu          sync.Mutex
	profileDir  string
	closed      bool
	restarts    int
	lastRestart time.Time
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Enabled      bool
	Capacity     int
	Idle         int
	InUse        int
	PoolSizeConf int
	ProfileDir   string
	TimeoutSecs  int
	Restarts     int
	LastRestart  time.Time
}

// NewPool builds a pool sized by pdf.chrome_pool_size.
func NewPool(cfg config.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}

	dir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:        cfg,
		sem:        make(chan struct{}, size),
		profileDir: dir,
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	p.startBrowser()

	logging.Info("chrome pool ready", "size", size, "profile_dir", dir)
	return p, nil
}

// startBrowser builds fresh allocator and browser contexts. The caller
// must hold mu or own the pool exclusively.
func (p *Pool) startBrowser() {
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.cfg, p.profileDir)...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocCtx)
}

// createProfileDir makes a throwaway Chrome profile directory, under
// pdf.user_data_dir when set.
func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		return os.MkdirTemp("", "websnatch-chrome-*")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("render: profile base %s: %w", base, err)
	}
	return os.MkdirTemp(base, "profile-*")
}

// Acquire leases a tab, waiting for a free slot until ctx expires.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	browserCtx := p.browserCtx
	p.mu.Unlock()

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release tears down the tab and returns its slot. The render error is
// only logged; tabs are never reused across renders.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab == nil {
		return
	}
	if tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil && IsSessionInterrupted(renderErr) {
		logging.Debug("chrome tab released after interrupted session", "error", renderErr.Error())
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser and its profile directory, keeping the
// semaphore as-is. In-flight tabs die with the old browser.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}

	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	old := p.profileDir
	p.profileDir = dir
	p.startBrowser()
	if old != "" {
		os.RemoveAll(old)
	}

	p.restarts++
	p.lastRestart = time.Now()
	logging.Warn("chrome pool restarted", "profile_dir", dir, "restarts", p.restarts)
	return nil
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		os.RemoveAll(p.profileDir)
	}
}

// Stats reports the current pool state. timeoutSecs is echoed back for
// the stats endpoint.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	return Stats{
		Enabled:      !p.closed,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
}
