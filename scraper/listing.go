package scraper

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ListingWalk counts what a DetailURLs sequence has consumed so far. Pages
// counts every page the walk tried to visit, so a walk that started counts
// at least one page even when that page failed.
type ListingWalk struct {
	Pages int
	Items int
}

// WalkCategory follows "next" links from startURL and returns every item
// URL in page order, then document order.
func (c *Crawler) WalkCategory(ctx context.Context, startURL string) *models.Listing {
	var walk ListingWalk
	var urls []string
	for link := range c.DetailURLs(ctx, startURL, &walk) {
		urls = append(urls, link)
	}
	return &models.Listing{
		TotalItems: len(urls),
		TotalPages: walk.Pages,
		ItemURLs:   urls,
	}
}

// DetailURLs lazily yields item detail URLs of a paginated listing, fetching
// the next page only once the current one is consumed. A page that cannot be
// fetched ends the sequence. walk may be nil.
func (c *Crawler) DetailURLs(ctx context.Context, startURL string, walk *ListingWalk) iter.Seq[string] {
	if walk == nil {
		walk = &ListingWalk{}
	}
	return func(yield func(string) bool) {
		visited := make(map[string]struct{})
		current := startURL
		for current != "" {
			if ctx.Err() != nil {
				return
			}
			if _, ok := visited[current]; ok {
				slog.Warn("pagination loop detected", slog.String("url", current))
				return
			}
			visited[current] = struct{}{}
			walk.Pages++

			page, err := c.fetcher.Fetch(ctx, current)
			if err != nil {
				slog.Error("listing page failed, stopping category",
					slog.String("url", current),
					slog.Int("pages", walk.Pages),
					slog.Any("error", err),
				)
				return
			}
			c.Metrics.IncPages()

			links := ItemLinks(page)
			slog.Debug("listing page processed",
				slog.Int("page", walk.Pages),
				slog.String("url", current),
				slog.Int("status", page.StatusCode),
				slog.Int("items", len(links)),
			)
			for _, link := range links {
				walk.Items++
				if !yield(link) {
					return
				}
			}
			current = nextPageURL(page)
		}
	}
}

// ItemLinks returns the detail links of every item card on a listing page,
// resolved against the page's own URL. Cards without a title link are
// skipped.
func ItemLinks(page *Page) []string {
	var links []string
	page.Doc.Find("article.product_pod").Each(func(i int, card *goquery.Selection) {
		href, ok := card.Find("h3 a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			slog.Debug("item card without link", slog.Int("card", i), slog.String("page", page.URL.String()))
			return
		}
		abs, err := page.Resolve(strings.TrimSpace(href))
		if err != nil {
			slog.Debug("item card with bad link", slog.Int("card", i), slog.Any("error", err))
			return
		}
		links = append(links, abs)
	})
	return links
}

func nextPageURL(page *Page) string {
	href, ok := page.Doc.Find("li.next a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	abs, err := page.Resolve(strings.TrimSpace(href))
	if err != nil {
		slog.Warn("invalid next page link", slog.String("href", href), slog.Any("error", err))
		return ""
	}
	return abs
}
