package scraper

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/jarcoal/httpmock"
)

const testBase = "http://example.test/"

// routes maps absolute URLs to responders.
type routes map[string]httpmock.Responder

func newTestCrawler(t *testing.T, r routes) (*Crawler, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	cfg.Timeout = 2 * time.Second
	cfg.DedupeMaxSize = 100

	transport := httpmock.NewMockTransport()
	for u, responder := range r {
		transport.RegisterResponder(http.MethodGet, u, responder)
		if u == testBase {
			transport.RegisterResponder(http.MethodGet, strings.TrimSuffix(u, "/"), responder)
		}
	}

	metrics := NewMetrics()
	fetcher := NewCollyFetcher(cfg, metrics)
	fetcher.WithTransport(transport)

	c, err := NewCrawlerWithFetcher(cfg, fetcher, metrics)
	if err != nil {
		t.Fatalf("new crawler: %v", err)
	}
	return c, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

// buildIndexPage renders the side navigation with the given name/href pairs.
func buildIndexPage(links ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="side_categories"><ul class="nav nav-list"><li>`)
	b.WriteString(`<a href="catalogue/category/books_1/index.html">Books</a><ul>`)
	for _, l := range links {
		fmt.Fprintf(&b, "<li>\n<a href=%q>\n  %s\n</a></li>", l[1], l[0])
	}
	b.WriteString(`</ul></li></ul></div></body></html>`)
	return b.String()
}

// buildListingPage renders one page of item cards. An empty href renders a
// card without a title link.
func buildListingPage(next string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for i, href := range hrefs {
		b.WriteString(`<li><article class="product_pod">`)
		if href == "" {
			fmt.Fprintf(&b, "<h3>Card %d</h3>", i)
		} else {
			fmt.Fprintf(&b, "<h3><a href=%q title=\"Item %d\">Item %d</a></h3>", href, i, i)
		}
		b.WriteString(`<p class="star-rating Two"></p></article></li>`)
	}
	b.WriteString(`</ol>`)
	if next != "" {
		fmt.Fprintf(&b, `<ul class="pager"><li class="next"><a href=%q>next</a></li></ul>`, next)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

type detailFixture struct {
	Title        string
	UPC          string
	PriceIncl    string
	PriceExcl    string
	Availability string
	RatingClass  string
	Category     string
	Image        string
	Description  string
	NoTable      bool
}

func defaultDetail() detailFixture {
	return detailFixture{
		Title:        "A Light in the Attic",
		UPC:          "a897fe39b1053632",
		PriceIncl:    "£51.77",
		PriceExcl:    "£51.77",
		Availability: "In stock (22 available)",
		RatingClass:  "Three",
		Category:     "Poetry",
		Image:        "../../media/cache/fe/72/fe72.jpg",
		Description:  "It's hard to imagine a world without A Light in the Attic.",
	}
}

func buildDetailPage(d detailFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="breadcrumb">`)
	b.WriteString(`<li><a href="../../index.html">Home</a></li>`)
	b.WriteString(`<li><a href="../category/books_1/index.html">Books</a></li>`)
	if d.Category != "" {
		fmt.Fprintf(&b, "<li>\n  <a href=\"../category/books/x_1/index.html\">%s</a>\n</li>", d.Category)
	}
	fmt.Fprintf(&b, `<li class="active">%s</li></ul>`, d.Title)

	if d.Image != "" {
		fmt.Fprintf(&b, `<div id="product_gallery" class="carousel"><div class="carousel-inner"><div class="item active"><img src=%q alt="cover"/></div></div></div>`, d.Image)
	}

	b.WriteString(`<div class="product_main">`)
	fmt.Fprintf(&b, "<h1>%s</h1>", d.Title)
	fmt.Fprintf(&b, "<p class=\"instock availability\">\n    <i class=\"icon-ok\"></i>\n    %s\n</p>", d.Availability)
	if d.RatingClass != "" {
		fmt.Fprintf(&b, `<p class="star-rating %s"><i class="icon-star"></i></p>`, d.RatingClass)
	}
	b.WriteString(`</div>`)

	if d.Description != "" {
		b.WriteString(`<div id="product_description" class="sub-header"><h2>Product Description</h2></div>`)
		fmt.Fprintf(&b, "<p>%s</p>", d.Description)
	}

	if !d.NoTable {
		b.WriteString(`<table class="table table-striped">`)
		fmt.Fprintf(&b, "<tr><th>UPC</th><td>%s</td></tr>", d.UPC)
		b.WriteString(`<tr><th>Product Type</th><td>Books</td></tr>`)
		fmt.Fprintf(&b, "<tr><th>Price (excl. tax)</th><td>%s</td></tr>", d.PriceExcl)
		fmt.Fprintf(&b, "<tr><th>Price (incl. tax)</th><td>%s</td></tr>", d.PriceIncl)
		b.WriteString(`<tr><th>Tax</th><td>£0.00</td></tr></table>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}
