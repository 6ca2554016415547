package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	errAbsent          = errors.New("element not found")
	errPatternMismatch = errors.New("pattern mismatch")
)

// Attribute table headers.
const (
	upcHeader          = "UPC"
	priceInclTaxHeader = "Price (incl. tax)"
	priceExclTaxHeader = "Price (excl. tax)"
)

// categoryTrailIndex is the breadcrumb position of the category:
// Home > Books > <category> > <title>.
const categoryTrailIndex = 2

type detailPage struct {
	doc  *goquery.Document
	base *url.URL
}

// fieldExtractor fills one part of a record. Extractors are independent: an
// error or panic in one never affects the others.
type fieldExtractor struct {
	field string
	apply func(*detailPage, *models.Record) error
}

var fieldExtractors = []fieldExtractor{
	{field: "title", apply: extractTitle},
	{field: "description", apply: extractDescription},
	{field: "availability", apply: extractAvailability},
	{field: "rating", apply: extractRating},
	{field: "table", apply: extractTable},
	{field: "category", apply: extractCategory},
	{field: "image", apply: extractImage},
}

// ExtractItem fetches a detail page and builds its record. It fails only
// when the page itself cannot be fetched; missing elements leave the
// matching fields empty.
func (c *Crawler) ExtractItem(ctx context.Context, detailURL string) (*models.Record, error) {
	page, err := c.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return ExtractRecord(detailURL, page.Doc, c.base), nil
}

// ExtractRecord applies every field extractor to doc. Image URLs resolve
// against base, the site root, not against detailURL.
func ExtractRecord(detailURL string, doc *goquery.Document, base *url.URL) *models.Record {
	record := models.NewRecord(detailURL)
	page := &detailPage{doc: doc, base: base}
	for _, fx := range fieldExtractors {
		if err := fx.run(page, record); err != nil {
			slog.Debug("field not extracted",
				slog.String("field", fx.field),
				slog.String("url", detailURL),
				slog.Any("error", err),
			)
		}
	}
	return record
}

func (fx fieldExtractor) run(page *detailPage, record *models.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return fx.apply(page, record)
}

func extractTitle(p *detailPage, r *models.Record) error {
	h1 := p.doc.Find("h1").First()
	if h1.Length() == 0 {
		return errAbsent
	}
	r.Title = models.Optional(h1.Text())
	return nil
}

func extractDescription(p *detailPage, r *models.Record) error {
	marker := p.doc.Find("#product_description").First()
	if marker.Length() == 0 {
		return errAbsent
	}
	paragraph := marker.NextAllFiltered("p").First()
	if paragraph.Length() == 0 {
		return errAbsent
	}
	r.Description = strings.TrimSpace(paragraph.Text())
	return nil
}

func extractAvailability(p *detailPage, r *models.Record) error {
	availability := p.doc.Find("p.availability").First()
	if availability.Length() == 0 {
		return errAbsent
	}
	r.QuantityAvailable = parser.ParseAvailability(strings.Join(strings.Fields(availability.Text()), " "))
	if r.QuantityAvailable == nil {
		return errPatternMismatch
	}
	return nil
}

func extractRating(p *detailPage, r *models.Record) error {
	class, ok := p.doc.Find("p." + parser.RatingBaseClass).First().Attr("class")
	if !ok {
		return errAbsent
	}
	r.Rating = parser.RatingFromClasses(class)
	return nil
}

func extractTable(p *detailPage, r *models.Record) error {
	rows := p.doc.Find("table.table tr")
	if rows.Length() == 0 {
		return errAbsent
	}
	values := make(map[string]string, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").First().Text())
		if header == "" {
			return
		}
		values[header] = strings.TrimSpace(row.Find("td").First().Text())
	})
	r.UniqueCode = models.Optional(values[upcHeader])
	r.PriceInclTax = models.Optional(values[priceInclTaxHeader])
	r.PriceExclTax = models.Optional(values[priceExclTaxHeader])
	return nil
}

func extractCategory(p *detailPage, r *models.Record) error {
	trail := p.doc.Find("ul.breadcrumb li")
	if trail.Length() <= categoryTrailIndex {
		return errAbsent
	}
	r.Category = models.Optional(trail.Eq(categoryTrailIndex).Text())
	return nil
}

func extractImage(p *detailPage, r *models.Record) error {
	src, ok := p.doc.Find("div.carousel-inner div.item.active img").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return errAbsent
	}
	abs, err := resolve(p.base, strings.TrimSpace(src))
	if err != nil {
		return err
	}
	r.ImageURL = &abs
	return nil
}
