package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// DiscoverCategories reads the category links from the base page's side
// navigation. Names are unique: a repeated name keeps its first position but
// takes the later URL. Any failure yields an empty result.
func (c *Crawler) DiscoverCategories(ctx context.Context) []models.Category {
	page, err := c.fetcher.Fetch(ctx, c.base.String())
	if err != nil {
		slog.Error("could not fetch base page", slog.String("url", c.base.String()), slog.Any("error", err))
		return nil
	}

	nav := page.Doc.Find("ul.nav.nav-list").First()
	if nav.Length() == 0 {
		slog.Warn("navigation list not found", slog.String("url", c.base.String()))
		return nil
	}
	sub := nav.Find("ul").First()
	if sub.Length() == 0 {
		slog.Warn("category sub-list not found", slog.String("url", c.base.String()))
		return nil
	}

	var categories []models.Category
	index := make(map[string]int)
	sub.Find("li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		name := strings.TrimSpace(a.Text())
		href, ok := a.Attr("href")
		if name == "" || !ok {
			return
		}
		abs, err := resolve(c.base, href)
		if err != nil {
			slog.Debug("skipping category link", slog.String("name", name), slog.Any("error", err))
			return
		}
		if i, ok := index[name]; ok {
			categories[i].URL = abs
			return
		}
		index[name] = len(categories)
		categories = append(categories, models.Category{Name: name, URL: abs})
	})

	slog.Info("categories discovered", slog.Int("count", len(categories)))
	return categories
}
