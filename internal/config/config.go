// Package config loads and validates the websnatch configuration file.
//
// Configuration is plain YAML. Every field has a working default, so the
// CLI runs without any file at all; a file only overrides the parts it
// names. The path is resolved from the --config flag, the CONFIG_PATH
// environment variable, or ./config.yaml, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath names the environment variable holding the config path.
	EnvConfigPath = "CONFIG_PATH"

	// MinMarginInches and MaxMarginInches bound the printable margin.
	MinMarginInches = 0.1
	MaxMarginInches = 2.0

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// PaperSize is a named page geometry in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// FetchConfig controls the HTTP client that downloads pages.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int           `yaml:"max_body_bytes"`
	UserAgent       string        `yaml:"user_agent"`
	FollowRedirects *bool         `yaml:"follow_redirects"`
}

// RedirectsEnabled reports whether the fetcher should follow redirects.
// Unset means yes.
func (f FetchConfig) RedirectsEnabled() bool {
	return f.FollowRedirects == nil || *f.FollowRedirects
}

// PDFConfig controls the render engines.
type PDFConfig struct {
	Engine          string               `yaml:"engine"`
	WkhtmltopdfPath string               `yaml:"wkhtmltopdf_path"`
	ChromePath      string               `yaml:"chrome_path"`
	ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
	ChromePoolSize  int                  `yaml:"chrome_pool_size"`
	UserDataDir     string               `yaml:"user_data_dir"`
	DefaultPaper    string               `yaml:"default_paper"`
	PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
	MarginInches    float64              `yaml:"margin_inches"`
	Encoding        string               `yaml:"encoding"`
	JavascriptDelay time.Duration        `yaml:"javascript_delay"`
	TimeoutSecs     int                  `yaml:"timeout_secs"`
}

// LimitsConfig caps request and response sizes in serve mode.
type LimitsConfig struct {
	MaxHTMLBytes int `yaml:"max_html_bytes"`
	MaxPDFBytes  int `yaml:"max_pdf_bytes"`
}

// LoggerConfig controls the zerolog sink and rotation.
type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig controls the serve-mode listener.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Prefork bool   `yaml:"prefork"`
}

// CacheConfig controls the redis-backed PDF cache.
type CacheConfig struct {
	PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
	PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
	RedisHost       string        `yaml:"redis_host"`
	RedisRateDB     int           `yaml:"redis_rate_db"`
	RedisPDFDB      int           `yaml:"redis_pdf_db"`
}

// RateLimitConfig controls the per-client sliding window in serve mode.
type RateLimitConfig struct {
	EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	UserLimit         int           `yaml:"user_limit"`
	RateInterval      time.Duration `yaml:"rate_interval"`
}

// HistoryConfig controls the local snatch archive.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled"`
	Dir      string `yaml:"dir"`
}

// Config is the root of the YAML configuration.
type Config struct {
	Fetch     FetchConfig     `yaml:"fetch"`
	PDF       PDFConfig       `yaml:"pdf"`
	Limits    LimitsConfig    `yaml:"limits"`
	Logger    LoggerConfig    `yaml:"logger"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	History   HistoryConfig   `yaml:"history"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Fetch.Timeout = 30 * time.Second
	c.Fetch.MaxBodyBytes = 10 << 20
	c.Fetch.UserAgent = defaultUserAgent
	c.PDF.Engine = "wkhtmltopdf"
	c.PDF.DefaultPaper = "A4"
	c.PDF.PaperSizes = defaultPaperSizes()
	c.PDF.MarginInches = 0.75
	c.PDF.Encoding = "UTF-8"
	c.PDF.JavascriptDelay = time.Second
	c.PDF.TimeoutSecs = 60
	c.Limits.MaxHTMLBytes = 2 << 20
	c.Limits.MaxPDFBytes = 20 << 20
	c.Logger.Level = "info"
	c.Logger.MaxSizeMB = 10
	c.Logger.MaxBackups = 3
	c.Logger.MaxAgeDays = 28
	c.Server.Host = "127.0.0.1"
	c.Server.Port = ":8080"
	c.Cache.PDFCacheTTL = time.Hour
	c.Cache.RedisHost = "127.0.0.1:6379"
	c.Cache.RedisPDFDB = 1
	c.RateLimit.EnableUserLimiter = true
	c.RateLimit.UserLimit = 60
	c.RateLimit.RateInterval = time.Hour
	return c
}

func defaultPaperSizes() map[string]PaperSize {
	return map[string]PaperSize{
		"A3":     {Width: 11.69, Height: 16.54},
		"A4":     {Width: 8.27, Height: 11.69},
		"A5":     {Width: 5.83, Height: 8.27},
		"Letter": {Width: 8.5, Height: 11},
		"Legal":  {Width: 8.5, Height: 14},
	}
}

// FromFile reads the file at path and merges it over the defaults.
func FromFile(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.PDF.PaperSizes) == 0 {
		cfg.PDF.PaperSizes = defaultPaperSizes()
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Load resolves the configuration path and reads it. An explicit path wins
// over CONFIG_PATH, which wins over ./config.yaml. When none of those
// exist the defaults are returned as-is.
func Load(path string) (Config, error) {
	if path != "" {
		return FromFile(path)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return FromFile(env)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return FromFile("config.yaml")
	}
	return Default(), nil
}

// HistoryDir returns the directory holding the snatch archive, preferring
// the configured path over the XDG data directory.
func (c Config) HistoryDir() string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	return filepath.Join(xdg.DataHome, "websnatch")
}

// Paper resolves a paper name against the configured sizes, ignoring
// case. An empty name selects the default paper. The returned name is
// the canonical key from the size table.
func (c Config) Paper(name string) (string, PaperSize, bool) {
	if name == "" {
		name = c.PDF.DefaultPaper
	}
	if ps, ok := c.PDF.PaperSizes[name]; ok {
		return name, ps, true
	}
	for k, ps := range c.PDF.PaperSizes {
		if strings.EqualFold(k, name) {
			return k, ps, true
		}
	}
	return name, PaperSize{}, false
}

func (c *Config) validate() error {
	if c.Fetch.Timeout <= 0 {
		return ErrFetchTimeout
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return ErrMaxBodyBytes
	}
	switch c.PDF.Engine {
	case "wkhtmltopdf", "chrome":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.PDF.Engine)
	}
	if _, ok := c.PDF.PaperSizes[c.PDF.DefaultPaper]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPaper, c.PDF.DefaultPaper)
	}
	if c.PDF.MarginInches < MinMarginInches || c.PDF.MarginInches > MaxMarginInches {
		return fmt.Errorf("%w: %.2f", ErrMarginRange, c.PDF.MarginInches)
	}
	if c.PDF.JavascriptDelay < 0 {
		return ErrJavascriptDelay
	}
	if c.PDF.TimeoutSecs <= 0 {
		return ErrRenderTimeout
	}
	if c.Limits.MaxHTMLBytes <= 0 {
		return ErrHTMLLimit
	}
	if c.Limits.MaxPDFBytes <= 0 {
		return ErrPDFLimit
	}
	if c.Cache.PDFCacheEnabled && c.Cache.PDFCacheTTL <= 0 {
		return ErrCacheTTL
	}
	if c.RateLimit.EnableUserLimiter {
		if c.RateLimit.UserLimit <= 0 {
			return ErrUserLimit
		}
		if c.RateLimit.RateInterval <= 0 {
			return ErrRateInterval
		}
	}
	return nil
}
