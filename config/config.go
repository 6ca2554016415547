package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Write modes for the master store.
const (
	WriteModeBatch       = "batch"
	WriteModeIncremental = "incremental"
)

// Config holds crawler configuration. It is passed explicitly to every
// component so tests can point them at fixture hosts and temp directories.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RetryDelay      time.Duration
	RetryTimeout    time.Duration
	CSVDir          string
	MasterFile      string
	ImageDir        string
	ImageExtensions []string
	OutputFormat    string // csv or dual
	WriteMode       string // batch or incremental
	BatchSize       int
	DedupeMaxSize   int
	UserAgent       string
	Verbose         bool
	MetricsAddr     string
}

// DefaultConfig returns defaults for the demo catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://books.toscrape.com/",
		Timeout:         15 * time.Second,
		RetryDelay:      5 * time.Second,
		RetryTimeout:    10 * time.Second,
		CSVDir:          filepath.Join("output", "csv"),
		MasterFile:      "book_data.csv",
		ImageDir:        filepath.Join("output", "images"),
		ImageExtensions: []string{".jpg", ".jpeg", ".png", ".svg"},
		OutputFormat:    "csv",
		WriteMode:       WriteModeBatch,
		BatchSize:       64,
		DedupeMaxSize:   10000,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:         false,
	}
}

// MasterPath is the location of the master store.
func (c *Config) MasterPath() string {
	return filepath.Join(c.CSVDir, c.MasterFile)
}

// CategoriesDir is the directory holding one store per category.
func (c *Config) CategoriesDir() string {
	return filepath.Join(c.CSVDir, "categories")
}

// ExportPath is the JSONL export written next to the master in dual mode.
func (c *Config) ExportPath() string {
	return strings.TrimSuffix(c.MasterPath(), filepath.Ext(c.MasterPath())) + ".jsonl"
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
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RetryTimeout <= 0 {
		return fmt.Errorf("retry timeout must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.CSVDir == "" {
		return fmt.Errorf("csv directory cannot be empty")
	}
	if c.MasterFile == "" {
		return fmt.Errorf("master file cannot be empty")
	}
	if c.ImageDir == "" {
		return fmt.Errorf("image directory cannot be empty")
	}
	if len(c.ImageExtensions) == 0 {
		return fmt.Errorf("image extensions cannot be empty")
	}
	for _, ext := range c.ImageExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("image extension %q must start with a dot", ext)
		}
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv or dual")
	}
	if c.WriteMode != WriteModeBatch && c.WriteMode != WriteModeIncremental {
		return fmt.Errorf("write mode must be %s or %s", WriteModeBatch, WriteModeIncremental)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
