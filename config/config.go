package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	MaxPages         int
	PageDelay        time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	DownloadDelay    time.Duration
	ProductDelay     time.Duration
	OutputDir        string
	ManifestFormat   string // csv, jsonl, dual, or none
	DatasetName      string // empty disables registration
	DatasetDB        string
	UserAgent        string
	MetricsAddr      string
	Verbose          bool
	RespectRobotsTxt bool
}

// DefaultConfig returns the defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.popcultcha.com.au/shop-by/brand/marvel/bobble-heads-and-pop-vinyl.html",
		MaxPages:         4,
		PageDelay:        0,
		RandomDelay:      0,
		Timeout:          15 * time.Second,
		DownloadDelay:    500 * time.Millisecond,
		ProductDelay:     0,
		OutputDir:        "popcultcha_products",
		ManifestFormat:   "csv",
		DatasetName:      "marvel-bobbleheads",
		DatasetDB:        "popcultcha_datasets.db",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		MetricsAddr:      "",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DownloadDelay < 0 {
		return fmt.Errorf("download delay cannot be negative")
	}
	if c.ProductDelay < 0 {
		return fmt.Errorf("product delay cannot be negative")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	switch c.ManifestFormat {
	case "csv", "jsonl", "dual", "none":
	default:
		return fmt.Errorf("manifest format must be csv, jsonl, dual, or none")
	}
	if c.DatasetName != "" && c.DatasetDB == "" {
		return fmt.Errorf("dataset db path cannot be empty when a dataset name is set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
