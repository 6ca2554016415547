package scraper

import (
	"context"
	"net/http"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
)

func TestDiscoverCategories(t *testing.T) {
	index := buildIndexPage(
		[2]string{"Mystery", "catalogue/category/books/mystery_3/index.html"},
		[2]string{"Travel", "catalogue/category/books/travel_2/index.html"},
	)
	c, _ := newTestCrawler(t, routes{testBase: htmlResponder(index)})

	got := c.DiscoverCategories(context.Background())
	want := []models.Category{
		{Name: "Mystery", URL: testBase + "catalogue/category/books/mystery_3/index.html"},
		{Name: "Travel", URL: testBase + "catalogue/category/books/travel_2/index.html"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverCategoriesDuplicateName(t *testing.T) {
	index := buildIndexPage(
		[2]string{"Mystery", "catalogue/category/books/mystery_3/index.html"},
		[2]string{"Travel", "catalogue/category/books/travel_2/index.html"},
		[2]string{"Mystery", "catalogue/category/books/mystery_9/index.html"},
	)
	c, _ := newTestCrawler(t, routes{testBase: htmlResponder(index)})

	got := c.DiscoverCategories(context.Background())
	want := []models.Category{
		{Name: "Mystery", URL: testBase + "catalogue/category/books/mystery_9/index.html"},
		{Name: "Travel", URL: testBase + "catalogue/category/books/travel_2/index.html"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverCategoriesEmpty(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{name: "no navigation", responder: htmlResponder("<html><body><p>maintenance</p></body></html>")},
		{name: "no sub-list", responder: htmlResponder(`<html><body><ul class="nav nav-list"><li>Books</li></ul></body></html>`)},
		{name: "server error", responder: httpmock.NewStringResponder(http.StatusInternalServerError, "")},
		{name: "empty body", responder: htmlResponder("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCrawler(t, routes{testBase: tt.responder})
			if got := c.DiscoverCategories(context.Background()); len(got) != 0 {
				t.Fatalf("categories = %v, want none", got)
			}
		})
	}
}
