package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/gocolly/colly/v2"
)

// Page is a fetched and parsed HTML document.
type Page struct {
	URL        *url.URL
	Doc        *goquery.Document
	StatusCode int
}

// Resolve turns href into an absolute URL relative to the page itself.
func (p *Page) Resolve(href string) (string, error) {
	return resolve(p.URL, href)
}

// Fetcher retrieves a document. Implementations return an error for
// transport failures, non-2xx responses and empty bodies.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// FetchStats counts requests and classified failures.
type FetchStats struct {
	Requests     int
	Errors       int
	ErrorsByType map[string]int
}

// CollyFetcher fetches pages one at a time with a synchronous colly
// collector. Every request is bounded by the configured timeout.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) *CollyFetcher {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &CollyFetcher{
		collector:    collector,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
}

// WithTransport swaps the HTTP transport, e.g. for tests.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch visits rawURL and parses the response body.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := f.collector.Clone()

	var (
		body     []byte
		status   int
		finalURL *url.URL
		cbErr    error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
		finalURL = r.Request.URL
	})
	c.OnError(func(r *colly.Response, err error) {
		cbErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	current := atomic.AddInt64(&f.requestCount, 1)
	f.metrics.IncRequest("started")
	if current%50 == 0 {
		slog.Debug("fetch progress", slog.Int64("requests", current), slog.String("url", rawURL))
	}

	start := time.Now()
	err := c.Visit(rawURL)
	f.metrics.ObserveDuration(time.Since(start))
	if err == nil {
		err = cbErr
	}
	if err != nil {
		return nil, f.fail(rawURL, err, status)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, f.fail(rawURL, ErrEmptyBody, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, f.fail(rawURL, fmt.Errorf("parse document: %w", err), status)
	}
	if finalURL == nil {
		finalURL, err = url.Parse(rawURL)
		if err != nil {
			return nil, f.fail(rawURL, err, status)
		}
	}
	f.metrics.IncRequest("completed")

	return &Page{URL: finalURL, Doc: doc, StatusCode: status}, nil
}

// Stats returns a snapshot of the request counters.
func (f *CollyFetcher) Stats() FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	return FetchStats{
		Requests:     int(atomic.LoadInt64(&f.requestCount)),
		Errors:       int(atomic.LoadInt64(&f.errorCount)),
		ErrorsByType: byType,
	}
}

func (f *CollyFetcher) fail(rawURL string, err error, status int) error {
	atomic.AddInt64(&f.errorCount, 1)
	classified := classifyError(err, status)
	if classified == nil {
		classified = err
	}
	category := errorTypeLabel(classified)

	f.mu.Lock()
	f.errorsByType[category]++
	f.mu.Unlock()

	slog.Error("request error",
		slog.String("url", rawURL),
		slog.Int("status", status),
		slog.String("category", category),
		slog.Any("error", err),
	)
	f.metrics.IncError(category)
	return fmt.Errorf("fetch %s: %w", rawURL, classified)
}

func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
