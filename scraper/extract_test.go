package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
)

const detailURL = testBase + "catalogue/a-light-in-the-attic_1000/index.html"

func extractFixture(t *testing.T, d detailFixture) *models.Record {
	t.Helper()
	c, _ := newTestCrawler(t, routes{detailURL: htmlResponder(buildDetailPage(d))})
	record, err := c.ExtractItem(context.Background(), detailURL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return record
}

func TestExtractItemFullPage(t *testing.T) {
	got := extractFixture(t, defaultDetail())

	want := &models.Record{
		DetailURL:         detailURL,
		UniqueCode:        models.Optional("a897fe39b1053632"),
		Title:             models.Optional("A Light in the Attic"),
		PriceInclTax:      models.Optional("£51.77"),
		PriceExclTax:      models.Optional("£51.77"),
		QuantityAvailable: models.Int(22),
		Description:       "It's hard to imagine a world without A Light in the Attic.",
		Category:          models.Optional("Poetry"),
		Rating:            "3/5",
		ImageURL:          models.Optional(testBase + "media/cache/fe/72/fe72.jpg"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractItemMissingTable(t *testing.T) {
	d := defaultDetail()
	d.NoTable = true
	got := extractFixture(t, d)

	if got.UniqueCode != nil || got.PriceInclTax != nil || got.PriceExclTax != nil {
		t.Fatalf("table fields should be nil: %+v", got)
	}
	if models.Value(got.Title) != d.Title || got.Rating != "3/5" || models.Value(got.Category) != "Poetry" {
		t.Fatalf("other fields should survive: %+v", got)
	}
	if got.QuantityAvailable == nil || *got.QuantityAvailable != 22 {
		t.Fatalf("quantity = %v, want 22", got.QuantityAvailable)
	}
}

func TestExtractItemPartialFields(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*detailFixture)
		check func(*testing.T, *models.Record)
	}{
		{
			name: "no description",
			edit: func(d *detailFixture) { d.Description = "" },
			check: func(t *testing.T, r *models.Record) {
				if r.Description != "" {
					t.Fatalf("description = %q, want empty", r.Description)
				}
			},
		},
		{
			name: "availability without count",
			edit: func(d *detailFixture) { d.Availability = "In stock" },
			check: func(t *testing.T, r *models.Record) {
				if r.QuantityAvailable != nil {
					t.Fatalf("quantity = %d, want nil", *r.QuantityAvailable)
				}
			},
		},
		{
			name: "unknown rating word",
			edit: func(d *detailFixture) { d.RatingClass = "Six" },
			check: func(t *testing.T, r *models.Record) {
				if r.Rating != models.DefaultRating {
					t.Fatalf("rating = %q, want %q", r.Rating, models.DefaultRating)
				}
			},
		},
		{
			name: "no rating element",
			edit: func(d *detailFixture) { d.RatingClass = "" },
			check: func(t *testing.T, r *models.Record) {
				if r.Rating != models.DefaultRating {
					t.Fatalf("rating = %q, want %q", r.Rating, models.DefaultRating)
				}
			},
		},
		{
			name: "short breadcrumb",
			edit: func(d *detailFixture) { d.Category = "" },
			check: func(t *testing.T, r *models.Record) {
				// Home > Books > title: position 2 is the title itself.
				if models.Value(r.Category) != "A Light in the Attic" {
					t.Fatalf("category = %v", models.Value(r.Category))
				}
			},
		},
		{
			name: "no image",
			edit: func(d *detailFixture) { d.Image = "" },
			check: func(t *testing.T, r *models.Record) {
				if r.ImageURL != nil {
					t.Fatalf("image = %q, want nil", *r.ImageURL)
				}
			},
		},
		{
			name: "image relative to site root",
			edit: func(d *detailFixture) { d.Image = "media/cache/x.jpg" },
			check: func(t *testing.T, r *models.Record) {
				if got := models.Value(r.ImageURL); got != testBase+"media/cache/x.jpg" {
					t.Fatalf("image = %q", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := defaultDetail()
			tt.edit(&d)
			record := extractFixture(t, d)
			if models.Value(record.UniqueCode) != d.UPC {
				t.Fatalf("code = %q, want %q", models.Value(record.UniqueCode), d.UPC)
			}
			tt.check(t, record)
		})
	}
}

func TestExtractItemFetchFailure(t *testing.T) {
	c, _ := newTestCrawler(t, routes{detailURL: httpmock.NewStringResponder(http.StatusNotFound, "")})

	record, err := c.ExtractItem(context.Background(), detailURL)
	if record != nil {
		t.Fatalf("record = %+v, want nil", record)
	}
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ErrNotFound in chain", err)
	}
}

func TestFieldExtractorRecoversPanic(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, _ := url.Parse(testBase)

	fx := fieldExtractor{field: "boom", apply: func(*detailPage, *models.Record) error {
		panic("unexpected markup")
	}}
	if err := fx.run(&detailPage{doc: doc, base: base}, models.NewRecord(detailURL)); err == nil {
		t.Fatal("expected error from panicking extractor")
	}

	record := ExtractRecord(detailURL, doc, base)
	if record.DetailURL != detailURL || record.Rating != models.DefaultRating || record.Title != nil {
		t.Fatalf("record = %+v", record)
	}
}
