// Package render turns web pages into PDF bytes.
//
// Two engines are available: the external wkhtmltopdf binary (the
// default) and headless Chrome driven over the DevTools protocol. Both
// accept either raw HTML or a URL for the browser to load itself.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"websnatch/internal/config"
)

const (
	// EngineWkhtmltopdf and EngineChrome name the two render engines.
	EngineWkhtmltopdf = "wkhtmltopdf"
	EngineChrome      = "chrome"

	// OrientationPortrait and OrientationLandscape are the accepted page
	// orientations.
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

var (
	// ErrUnknownEngine is returned when the engine name matches no renderer.
	ErrUnknownEngine = errors.New("render: unknown engine")

	// ErrUnknownPaper is returned when the paper name has no size entry.
	ErrUnknownPaper = errors.New("render: unknown paper size")

	// ErrBadOrientation is returned for orientations other than portrait
	// and landscape.
	ErrBadOrientation = errors.New("render: orientation must be portrait or landscape")

	// ErrMarginRange is returned when the margin falls outside the
	// accepted range.
	ErrMarginRange = errors.New("render: margin out of range")

	// ErrRendererNotFound is returned when the wkhtmltopdf binary cannot
	// be located.
	ErrRendererNotFound = errors.New("render: wkhtmltopdf not found (install it or set pdf.wkhtmltopdf_path)")

	// ErrNoPDF is returned when a renderer exits cleanly without
	// producing a PDF document.
	ErrNoPDF = errors.New("render: renderer produced no pdf output")
)

// Job describes one document to render. Exactly one of URL and HTML is
// set: a URL makes the renderer load the page itself, HTML hands it a
// pre-fetched document.
type Job struct {
	URL  string
	HTML string

	PaperName       string
	Paper           config.PaperSize
	Orientation     string
	Margin          float64
	Encoding        string
	JavascriptDelay time.Duration
}

// Engine renders a job into PDF bytes.
type Engine interface {
	Name() string
	Render(ctx context.Context, job Job) ([]byte, error)
}

// New selects an engine by name. An empty name picks the configured
// engine.
func New(name string, cfg config.Config) (Engine, error) {
	if name == "" {
		name = cfg.PDF.Engine
	}
	switch strings.ToLower(name) {
	case "", EngineWkhtmltopdf:
		return NewWkhtmltopdf(cfg), nil
	case EngineChrome, "chromium":
		return NewChrome(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

// NewJob resolves page options against the configuration. The paper name
// is matched case-insensitively and an empty orientation means portrait.
func NewJob(cfg config.Config, paperName, orientation string, margin float64) (Job, error) {
	name, paper, ok := cfg.Paper(paperName)
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownPaper, paperName)
	}

	switch strings.ToLower(orientation) {
	case "", OrientationPortrait:
		orientation = OrientationPortrait
	case OrientationLandscape:
		orientation = OrientationLandscape
	default:
		return Job{}, fmt.Errorf("%w: %q", ErrBadOrientation, orientation)
	}

	if margin < config.MinMarginInches || margin > config.MaxMarginInches {
		return Job{}, fmt.Errorf("%w: %.2f", ErrMarginRange, margin)
	}

	return Job{
		PaperName:       name,
		Paper:           paper,
		Orientation:     orientation,
		Margin:          margin,
		Encoding:        cfg.PDF.Encoding,
		JavascriptDelay: cfg.PDF.JavascriptDelay,
	}, nil
}

// ExitError reports a renderer subprocess that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("render: wkhtmltopdf exited with code %d", e.Code)
	}
	return fmt.Sprintf("render: wkhtmltopdf exited with code %d: %s", e.Code, e.Stderr)
}

// IsPDF reports whether b starts with the PDF magic bytes.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}
