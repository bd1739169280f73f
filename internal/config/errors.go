package config

import "errors"

var (
	// ErrFetchTimeout is returned when fetch.timeout is zero or negative.
	ErrFetchTimeout = errors.New("config: fetch timeout must be positive")

	// ErrMaxBodyBytes is returned when fetch.max_body_bytes is zero or negative.
	ErrMaxBodyBytes = errors.New("config: fetch body limit must be positive")

	// ErrUnknownEngine is returned when pdf.engine names no known renderer.
	ErrUnknownEngine = errors.New("config: unknown render engine")

	// ErrUnknownPaper is returned when pdf.default_paper has no entry in
	// pdf.paper_sizes.
	ErrUnknownPaper = errors.New("config: default paper has no size entry")

	// ErrMarginRange is returned when pdf.margin_inches falls outside the
	// accepted range.
	ErrMarginRange = errors.New("config: margin out of range")

	// ErrRenderTimeout is returned when pdf.timeout_secs is zero or negative.
	ErrRenderTimeout = errors.New("config: render timeout must be positive")

	// ErrJavascriptDelay is returned when pdf.javascript_delay is negative.
	ErrJavascriptDelay = errors.New("config: javascript delay must not be negative")

	// ErrHTMLLimit is returned when limits.max_html_bytes is zero or negative.
	ErrHTMLLimit = errors.New("config: html size limit must be positive")

	// ErrPDFLimit is returned when limits.max_pdf_bytes is zero or negative.
	ErrPDFLimit = errors.New("config: pdf size limit must be positive")

	// ErrCacheTTL is returned when the PDF cache is enabled with a
	// non-positive TTL.
	ErrCacheTTL = errors.New("config: cache ttl must be positive")

	// ErrUserLimit is returned when the user limiter is enabled with a
	// non-positive request budget.
	ErrUserLimit = errors.New("config: user limit must be positive")

	// ErrRateInterval is returned when the user limiter is enabled with a
	// non-positive window.
	ErrRateInterval = errors.New("config: rate interval must be positive")
)
