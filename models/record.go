// Package models defines data structures for the crawler.
package models

import (
	"strconv"
	"strings"
)

// Columns is the fixed column order of every store file.
var Columns = []string{
	"product_page_url",
	"universal_product_code",
	"title",
	"price_including_tax",
	"price_excluding_tax",
	"number_available",
	"product_description",
	"category",
	"review_rating",
	"image_url",
}

// DefaultRating is used when the rating class is absent or unrecognized.
const DefaultRating = "0/5"

// Category is one entry of the site navigation.
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Record is one catalog item extracted from its detail page. Nil pointers
// mark fields that were absent on the page.
type Record struct {
	DetailURL         string  `json:"product_page_url"`
	UniqueCode        *string `json:"universal_product_code"`
	Title             *string `json:"title"`
	PriceInclTax      *string `json:"price_including_tax"`
	PriceExclTax      *string `json:"price_excluding_tax"`
	QuantityAvailable *int    `json:"number_available"`
	Description       string  `json:"product_description"`
	Category          *string `json:"category"`
	Rating            string  `json:"review_rating"`
	ImageURL          *string `json:"image_url"`
}

// NewRecord returns a record for detailURL with the default rating set.
func NewRecord(detailURL string) *Record {
	return &Record{DetailURL: detailURL, Rating: DefaultRating}
}

// Code returns the unique code or "" when missing.
func (r *Record) Code() string {
	return Value(r.UniqueCode)
}

// Row renders the record in Columns order. Missing values become empty cells.
func (r *Record) Row() []string {
	quantity := ""
	if r.QuantityAvailable != nil {
		quantity = strconv.Itoa(*r.QuantityAvailable)
	}
	return []string{
		r.DetailURL,
		Value(r.UniqueCode),
		Value(r.Title),
		Value(r.PriceInclTax),
		Value(r.PriceExclTax),
		quantity,
		r.Description,
		Value(r.Category),
		r.Rating,
		Value(r.ImageURL),
	}
}

// Fields maps column names to cell values.
func (r *Record) Fields() map[string]string {
	row := r.Row()
	out := make(map[string]string, len(Columns))
	for i, col := range Columns {
		out[col] = row[i]
	}
	return out
}

// Equal reports whether both records serialize to the same row.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	a, b := r.Row(), other.Row()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RecordFromFields rebuilds a record from a column→value map read from a
// store. Unknown columns are ignored, missing columns stay missing.
func RecordFromFields(fields map[string]string) *Record {
	r := &Record{
		DetailURL:    strings.TrimSpace(fields["product_page_url"]),
		UniqueCode:   Optional(fields["universal_product_code"]),
		Title:        Optional(fields["title"]),
		PriceInclTax: Optional(fields["price_including_tax"]),
		PriceExclTax: Optional(fields["price_excluding_tax"]),
		Description:  fields["product_description"],
		Category:     Optional(fields["category"]),
		Rating:       strings.TrimSpace(fields["review_rating"]),
		ImageURL:     Optional(fields["image_url"]),
	}
	if r.Rating == "" {
		r.Rating = DefaultRating
	}
	if raw := strings.TrimSpace(fields["number_available"]); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			r.QuantityAvailable = &n
		}
	}
	return r
}

// Optional returns nil for blank strings and a pointer to the trimmed value
// otherwise.
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Int returns a pointer to n.
func Int(n int) *int {
	return &n
}
