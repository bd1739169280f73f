// Package fetch downloads web pages over HTTP.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"websnatch/internal/config"
	"websnatch/internal/logging"
)

var (
	// ErrInvalidURL is returned for URLs without an http(s) scheme or host.
	ErrInvalidURL = errors.New("fetch: invalid url")

	// ErrBadStatus is returned for responses outside the 2xx range.
	ErrBadStatus = errors.New("fetch: unexpected status")

	// ErrNotHTML is returned when the response does not carry an HTML body.
	ErrNotHTML = errors.New("fetch: content is not html")

	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("fetch: body exceeds size limit")
)

// ParseURL validates a raw URL for fetching. Only absolute http and https
// URLs with a host are accepted.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// Page is one downloaded document.
type Page struct {
	URL   *url.URL
	Title string
	HTML  []byte
}

// Fetcher downloads pages with a shared HTTP client.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client, e.g. with a test transport.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodyBytes caps the accepted response body size.
func WithMaxBodyBytes(n int) Option {
	return func(f *Fetcher) {
		f.maxBodyBytes = n
	}
}

// New returns a Fetcher with browser-like defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{Timeout: 30 * time.Second},
		userAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		maxBodyBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig builds a Fetcher from the fetch section of the config.
func NewFromConfig(cfg config.FetchConfig) *Fetcher {
	client := &http.Client{Timeout: cfg.Timeout}
	if !cfg.RedirectsEnabled() {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return New(
		WithClient(client),
		WithUserAgent(cfg.UserAgent),
		WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
}

// Fetch downloads u and returns the page body with its <title>. Redirects
// are followed by the underlying client; the final 2xx response wins.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTML(ct) {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBodyBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", u.Host, err)
	}
	if len(body) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: %d bytes max", ErrTooLarge, f.maxBodyBytes)
	}

	page := &Page{URL: u, HTML: body, Title: extractTitle(body)}
	logging.Debug("fetched page", "url", u.String(), "bytes", len(body), "title", page.Title)
	return page, nil
}

func isHTML(ct string) bool {
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func extractTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
