// Package scraper discovers categories, walks listings and extracts item
// records from a catalog site.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Crawler runs the category → listing → detail crawl sequentially.
type Crawler struct {
	cfg     *config.Config
	base    *url.URL
	fetcher Fetcher
	Metrics *Metrics

	visited *lru.Cache[string, struct{}]
}

// NewCrawler builds a crawler backed by a colly fetcher.
func NewCrawler(cfg *config.Config) (*Crawler, error) {
	metrics := NewMetrics()
	return NewCrawlerWithFetcher(cfg, NewCollyFetcher(cfg, metrics), metrics)
}

// NewCrawlerWithFetcher builds a crawler around an existing fetcher.
func NewCrawlerWithFetcher(cfg *config.Config, fetcher Fetcher, metrics *Metrics) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	visited, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create visited cache: %w", err)
	}

	return &Crawler{
		cfg:     cfg,
		base:    base,
		fetcher: fetcher,
		Metrics: metrics,
		visited: visited,
	}, nil
}

// Run crawls every category and streams records through p. It fails only
// when no category can be discovered; everything below that level is
// logged and counted in the result.
func (c *Crawler) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.CrawlResult{StartTime: time.Now()}

	categories := c.DiscoverCategories(ctx)
	if len(categories) == 0 {
		return nil, ErrNoCategories
	}

	for i, category := range categories {
		if ctx.Err() != nil {
			slog.Info("crawl cancelled", slog.Int("categories_done", i))
			break
		}
		slog.Info("crawling category",
			slog.String("category", category.Name),
			slog.Int("index", i+1),
			slog.Int("total", len(categories)),
		)
		stats, err := c.crawlCategory(ctx, category, p, result)
		result.Categories = append(result.Categories, stats)
		if err != nil {
			return result, err
		}
	}

	result.EndTime = time.Now()
	for _, stats := range result.Categories {
		result.PageCount += stats.Pages
		result.TotalCount += stats.Extracted
		result.SkippedCount += stats.Skipped
	}
	if sp, ok := c.fetcher.(interface{ Stats() FetchStats }); ok {
		fs := sp.Stats()
		result.RequestCount = fs.Requests
		result.ErrorCount = fs.Errors
		result.ErrorsByType = fs.ErrorsByType
	}
	return result, nil
}

func (c *Crawler) crawlCategory(ctx context.Context, category models.Category, p *pipeline.Pipeline, result *models.CrawlResult) (models.CategoryStats, error) {
	stats := models.CategoryStats{Name: category.Name}
	var walk ListingWalk

	for link := range c.DetailURLs(ctx, category.URL, &walk) {
		if c.visited.Contains(link) {
			stats.Skipped++
			continue
		}
		c.visited.Add(link, struct{}{})

		record, err := c.ExtractItem(ctx, link)
		if err != nil {
			stats.Failed++
			result.FailedURLs = append(result.FailedURLs, link)
			c.Metrics.IncExtractionFailure()
			slog.Warn("item skipped", slog.String("url", link), slog.Any("error", err))
			continue
		}
		stats.Extracted++
		c.Metrics.IncItems()

		if err := p.Process(record); err != nil {
			stats.Pages, stats.Items = walk.Pages, walk.Items
			return stats, fmt.Errorf("process %s: %w", link, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	stats.Pages = walk.Pages
	stats.Items = walk.Items

	// A category's records reach the stores before the next one starts.
	if err := p.Flush(); err != nil {
		return stats, fmt.Errorf("flush %s: %w", category.Name, err)
	}
	slog.Info("category crawled",
		slog.String("category", category.Name),
		slog.Int("pages", stats.Pages),
		slog.Int("items", stats.Items),
		slog.Int("extracted", stats.Extracted),
		slog.Int("failed", stats.Failed),
	)
	return stats, nil
}
