package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"websnatch/internal/config"
	"websnatch/internal/fetch"
	"websnatch/internal/history"
	"websnatch/internal/logging"
	"websnatch/internal/render"
)

// minHTMLBytes rejects bodies too short to be a document.
const minHTMLBytes = 10

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// requestParams holds validated input for one conversion. parsed is set
// alongside URL for URL-based requests.
type requestParams struct {
	URL      string
	parsed   *url.URL
	Filename string
	Job      render.Job
}

// Service bundles the conversion dependencies behind the HTTP handlers.
type Service struct {
	cfg     config.Config
	fetcher *fetch.Fetcher
	engine  render.Engine
	hist    *history.DB
	redis   *redis.Client
}

// NewService creates a Service from the app dependencies.
func NewService(deps Deps) *Service {
	svc := &Service{
		cfg:     deps.Config,
		fetcher: deps.Fetcher,
		engine:  deps.Engine,
		hist:    deps.History,
		redis:   deps.Redis,
	}
	if svc.fetcher == nil {
		svc.fetcher = fetch.NewFromConfig(deps.Config.Fetch)
	}
	if svc.engine == nil {
		svc.engine, _ = render.New("", deps.Config)
	}
	return svc
}

// HandleURLConversion fetches a page and returns it as a PDF.
func (svc *Service) HandleURLConversion(c *fiber.Ctx) error {
	params, err := svc.urlParams(c)
	if err != nil {
		return err
	}
	return svc.process(c, params)
}

// HandleHTMLConversion renders caller-supplied HTML into a PDF.
func (svc *Service) HandleHTMLConversion(c *fiber.Ctx) error {
	params, err := svc.htmlParams(c)
	if err != nil {
		return err
	}
	return svc.process(c, params)
}

// process handles caching, fetching, rendering and history for one
// validated conversion request.
func (svc *Service) process(c *fiber.Ctx, params *requestParams) error {
	cacheKey := pdfCacheKey(params)

	if svc.redis != nil && svc.cfg.Cache.PDFCacheEnabled {
		if cached, err := svc.cachedPDF(c, cacheKey, params.Filename); err == nil && cached != nil {
			return c.Send(cached)
		}
	}

	start := time.Now()
	rec := history.Record{
		URL:    params.URL,
		Engine: svc.engine.Name(),
	}

	if params.URL != "" {
		fetchCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.Fetch.Timeout)
		page, err := svc.fetcher.Fetch(fetchCtx, params.parsed)
		cancel()
		if err != nil {
			svc.record(c, rec, start, err)
			logging.Error("page fetch failed", "url", params.URL, "error", err.Error())
			return fiber.NewError(fiber.StatusBadGateway, "fetch failed: "+err.Error())
		}
		params.Job.HTML = string(page.HTML)
		rec.Title = page.Title
	}

	renderCtx, cancel := context.WithTimeout(context.Background(), time.Duration(svc.cfg.PDF.TimeoutSecs)*time.Second)
	pdfBuf, err := svc.engine.Render(renderCtx, params.Job)
	cancel()
	if err != nil {
		svc.record(c, rec, start, err)
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Error("pdf generation timeout", "timeout_secs", svc.cfg.PDF.TimeoutSecs, "error", err.Error())
			return fiber.NewError(fiber.StatusRequestTimeout, "PDF rendering took too long")
		}
		if render.IsSessionInterrupted(err) {
			logging.Error("chrome session interrupted", "error", err.Error())
			return fiber.NewError(fiber.StatusServiceUnavailable, "Chrome session interrupted")
		}
		logging.Error("pdf generation failed", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "conversion failed: "+err.Error())
	}

	if len(pdfBuf) > svc.cfg.Limits.MaxPDFBytes {
		svc.record(c, rec, start, errors.New("pdf exceeds allowed size"))
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}

	if svc.redis != nil && svc.cfg.Cache.PDFCacheEnabled {
		svc.cachePDF(c, cacheKey, pdfBuf)
	}

	rec.PDFBytes = int64(len(pdfBuf))
	svc.record(c, rec, start, nil)

	requestID := c.Get("X-Request-ID")
	logging.Info("pdf generated", "filename", params.Filename, "bytes", len(pdfBuf), "request_id", requestID)

	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", "attachment; filename="+params.Filename)
	return c.Send(pdfBuf)
}

// record archives one conversion attempt. History failures never fail the
// request.
func (svc *Service) record(c *fiber.Ctx, rec history.Record, start time.Time, convErr error) {
	if svc.hist == nil {
		return
	}
	rec.DurationMS = time.Since(start).Milliseconds()
	if convErr != nil {
		rec.Status = history.StatusFailed
		rec.Error = convErr.Error()
	} else {
		rec.Status = history.StatusOK
	}
	if _, err := svc.hist.Insert(c.Context(), &rec); err != nil {
		logging.Warn("history insert failed", "error", err.Error())
	}
}

// htmlParams validates and parses form input for POST /v1/pdf.
func (svc *Service) htmlParams(c *fiber.Ctx) (*requestParams, error) {
	html := c.FormValue("html")

	if len(html) < minHTMLBytes {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid HTML: content too short or missing")
	}
	if len(html) > svc.cfg.Limits.MaxHTMLBytes {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("HTML input exceeds %d bytes", svc.cfg.Limits.MaxHTMLBytes))
	}

	params, err := svc.pageParams(c.FormValue("format"), c.FormValue("orientation"), c.FormValue("margin"), c.FormValue("filename"))
	if err != nil {
		return nil, err
	}
	params.Job.HTML = html
	return params, nil
}

// urlParams validates query input for GET /v1/pdf.
func (svc *Service) urlParams(c *fiber.Ctx) (*requestParams, error) {
	raw := c.Query("url")
	if raw == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid URL: missing")
	}
	parsed, err := fetch.ParseURL(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid URL: must be HTTP or HTTPS")
	}

	params, err := svc.pageParams(c.Query("format"), c.Query("orientation"), c.Query("margin"), c.Query("filename"))
	if err != nil {
		return nil, err
	}
	params.URL = raw
	params.parsed = parsed
	return params, nil
}

// pageParams resolves the shared page options against the configuration.
func (svc *Service) pageParams(format, orientation, marginStr, filename string) (*requestParams, error) {
	margin := svc.cfg.PDF.MarginInches
	if marginStr != "" {
		m, err := strconv.ParseFloat(marginStr, 64)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid margin: must be a float between 0.1 and 2.0")
		}
		margin = m
	}

	job, err := render.NewJob(svc.cfg, format, orientation, margin)
	if err != nil {
		switch {
		case errors.Is(err, render.ErrUnknownPaper):
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid format: not supported")
		case errors.Is(err, render.ErrBadOrientation):
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid orientation: must be 'portrait' or 'landscape'")
		case errors.Is(err, render.ErrMarginRange):
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid margin: must be a float between 0.1 and 2.0")
		default:
			return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	if filename == "" {
		filename = "output.pdf"
	} else {
		if !strings.HasSuffix(filename, ".pdf") {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename must end with .pdf")
		}
		if !filenamePattern.MatchString(filename) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
		}
	}

	return &requestParams{Filename: filename, Job: job}, nil
}

// HandleHistory returns the latest archived conversions.
func (svc *Service) HandleHistory(c *fiber.Ctx) error {
	if svc.hist == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history disabled")
	}

	recs, err := svc.hist.Recent(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		logging.Error("history query failed", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "history query failed")
	}

	out := make([]fiber.Map, 0, len(recs))
	for _, r := range recs {
		out = append(out, fiber.Map{
			"id":          r.ID,
			"url":         r.URL,
			"title":       r.Title,
			"output_path": r.OutputPath,
			"engine":      r.Engine,
			"status":      r.Status,
			"error":       r.Error,
			"pdf_bytes":   r.PDFBytes,
			"duration_ms": r.DurationMS,
			"created_at":  r.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"count": len(out), "records": out})
}

// HandleEngineStats exposes basic observability for the render engine.
// For the Chrome engine this includes the tab pool (capacity / idle /
// in_use).
func (svc *Service) HandleEngineStats(c *fiber.Ctx) error {
	chrome, ok := svc.engine.(*render.Chrome)
	if !ok {
		return c.JSON(fiber.Map{
			"engine":       svc.engine.Name(),
			"pooled":       false,
			"timeout_secs": svc.cfg.PDF.TimeoutSecs,
		})
	}

	pool, err := chrome.Pool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}

	// Pool disabled.
	if pool == nil {
		return c.JSON(fiber.Map{
			"engine":         svc.engine.Name(),
			"pooled":         false,
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.cfg.PDF.ChromePoolSize,
			"profile_dir":    "",
			"timeout_secs":   svc.cfg.PDF.TimeoutSecs,
			"restarts":       0,
		})
	}

	s := pool.Stats(svc.cfg.PDF.TimeoutSecs)
	return c.JSON(fiber.Map{
		"engine":         svc.engine.Name(),
		"pooled":         true,
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   s.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
