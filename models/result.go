package models

import "time"

// Listing is the outcome of walking one category's paginated listing.
type Listing struct {
	TotalItems int
	TotalPages int
	ItemURLs   []string
}

// CategoryStats summarizes the crawl of a single category.
type CategoryStats struct {
	Name      string
	Pages     int
	Items     int
	Extracted int
	Failed    int
	Skipped   int
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Categories   []CategoryStats
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RequestCount int
	PageCount    int
	SkippedCount int
}

// MissingImage describes a store row that was not eligible for download.
type MissingImage struct {
	Title  string
	URL    string
	Reason string // "missing" or "unsupported"
}

// ImageReport summarizes an image sync.
type ImageReport struct {
	TotalRows      int
	Eligible       int
	Downloaded     int
	AlreadyPresent int
	Recovered      int
	Ineligible     []MissingImage
	Failed         []string
}

// Unsupported returns the ineligible rows with an unsupported URL.
func (r *ImageReport) Unsupported() []MissingImage {
	return r.filter("unsupported")
}

// Missing returns the ineligible rows without any image URL.
func (r *ImageReport) Missing() []MissingImage {
	return r.filter("missing")
}

func (r *ImageReport) filter(reason string) []MissingImage {
	var out []MissingImage
	for _, m := range r.Ineligible {
		if m.Reason == reason {
			out = append(out, m)
		}
	}
	return out
}
