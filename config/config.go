package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PagePlaceholder marks where the page number goes in ListingTemplate.
const PagePlaceholder = "{page}"

// ErrInvalidConfig wraps every validation failure so callers can tell fatal
// configuration errors apart from recovered crawl errors.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds crawler configuration.
type Config struct {
	ListingTemplate  string
	TotalPages       int
	DetailWorkers    int
	PacingInterval   time.Duration
	Timeout          time.Duration
	DetailCacheSize  int // 0 fetches every detail page
	PipelineBuffer   int
	OutputDir        string
	OutputFormat     string // csv, json, dual, or sqlite
	UserAgent        string
	RespectRobotsTxt bool
	Verbose          bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		ListingTemplate:  "https://books.toscrape.com/catalogue/page-{page}.html",
		TotalPages:       3,
		DetailWorkers:    1,
		PacingInterval:   500 * time.Millisecond,
		Timeout:          10 * time.Second,
		DetailCacheSize:  0,
		PipelineBuffer:   256,
		OutputDir:        "output",
		OutputFormat:     "csv",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		Verbose:          false,
		MetricsAddr:      "",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ListingTemplate == "" {
		return fmt.Errorf("listing template cannot be empty")
	}
	if strings.Count(c.ListingTemplate, PagePlaceholder) != 1 {
		return fmt.Errorf("listing template must contain %s exactly once", PagePlaceholder)
	}
	if _, err := c.ListingURL(1); err != nil {
		return err
	}

	if c.TotalPages < 1 {
		return fmt.Errorf("total pages must be positive")
	}
	if c.DetailWorkers <= 0 {
		return fmt.Errorf("detail workers must be positive")
	}
	if c.PacingInterval < 0 {
		return fmt.Errorf("pacing interval cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DetailCacheSize < 0 {
		return fmt.Errorf("detail cache size cannot be negative")
	}
	if c.PipelineBuffer <= 0 {
		return fmt.Errorf("pipeline buffer must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ListingURL renders the listing template for page n and checks that the
// result is an absolute URL.
func (c *Config) ListingURL(n int) (*url.URL, error) {
	raw := strings.ReplaceAll(c.ListingTemplate, PagePlaceholder, strconv.Itoa(n))
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid listing template: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("listing template must use http or https")
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("listing template must include a host")
	}
	return parsed, nil
}

// Host returns the host the listing template points at.
func (c *Config) Host() string {
	u, err := c.ListingURL(1)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
