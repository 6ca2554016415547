package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if diff := cmp.Diff(config.DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scraper.yaml")
	content := `base_url: http://catalog.test/
csv_dir: data/csv
write_mode: Incremental
retry_delay: 250ms
image_ext: [jpg, ".PNG"]
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SCRAPER_BATCH_SIZE", "8")
	t.Setenv("SCRAPER_CSV_DIR", filepath.Join(dir, "env-csv"))

	v := viper.New()
	v.SetConfigFile(file)
	v.SetEnvPrefix("SCRAPER")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BaseURL != "http://catalog.test/" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.CSVDir != filepath.Join(dir, "env-csv") {
		t.Fatalf("csv dir = %q, environment should win over the file", cfg.CSVDir)
	}
	if cfg.WriteMode != config.WriteModeIncremental || cfg.BatchSize != 8 {
		t.Fatalf("write mode = %q, batch size = %d", cfg.WriteMode, cfg.BatchSize)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Fatalf("retry delay = %v", cfg.RetryDelay)
	}
	if diff := cmp.Diff([]string{".jpg", ".png"}, cfg.ImageExtensions); diff != "" {
		t.Fatalf("extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("format", "xml")
	if _, err := loadConfig(v); err == nil {
		t.Fatal("expected validation error for unknown format")
	}
}

func TestEnsureMasterRebuildsFromCategories(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CSVDir = t.TempDir()

	for _, category := range []string{"Mystery", "Travel"} {
		r := models.NewRecord("http://example.test/" + category)
		r.UniqueCode = models.Optional("code-" + category)
		r.Title = models.Optional(category + " title")
		r.Category = models.Optional(category)
		if _, err := pipeline.WriteCategoryStore(category, []*models.Record{r}, cfg.CSVDir); err != nil {
			t.Fatalf("seed %s: %v", category, err)
		}
	}

	master := pipeline.NewMasterWriter(cfg.MasterPath(), cfg.WriteMode)
	if err := ensureMaster(cfg, master); err != nil {
		t.Fatalf("ensure master: %v", err)
	}
	if err := master.Validate(); err != nil {
		t.Fatalf("master still invalid: %v", err)
	}
	records, err := master.Store().Records()
	if err != nil {
		t.Fatalf("read master: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
}

func TestEnsureMasterFailsWithoutCategories(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CSVDir = t.TempDir()

	master := pipeline.NewMasterWriter(cfg.MasterPath(), cfg.WriteMode)
	if err := ensureMaster(cfg, master); err == nil {
		t.Fatal("expected rebuild error without category stores")
	}
}

func TestNormalizeExtensions(t *testing.T) {
	got := normalizeExtensions([]string{"JPG", " .png ", "", ".Svg"})
	if diff := cmp.Diff([]string{".jpg", ".png", ".svg"}, got); diff != "" {
		t.Fatalf("extensions mismatch (-want +got):\n%s", diff)
	}
}

const itemURL = "http://example.test/catalogue/a-light-in-the-attic_1000/index.html"

func detailHTML(title, upc string) string {
	return `<html><body><ul class="breadcrumb">
<li><a href="../../index.html">Home</a></li>
<li><a href="../category/books_1/index.html">Books</a></li>
<li><a href="../category/books/poetry_23/index.html">Poetry</a></li>
<li class="active">` + title + `</li></ul>
<div class="carousel-inner"><div class="item active"><img src="../../media/cache/fe/72/fe72.jpg" alt="cover"/></div></div>
<div class="product_main"><h1>` + title + `</h1>
<p class="instock availability">In stock (22 available)</p>
<p class="star-rating Three"></p></div>
<div id="product_description" class="sub-header"><h2>Product Description</h2></div>
<p>Poems.</p>
<table class="table table-striped">
<tr><th>UPC</th><td>` + upc + `</td></tr>
<tr><th>Price (excl. tax)</th><td>£51.77</td></tr>
<tr><th>Price (incl. tax)</th><td>£51.77</td></tr>
</table></body></html>`
}

func newItemCrawler(t *testing.T, responders ...httpmock.Responder) *scraper.Crawler {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.Timeout = 2 * time.Second

	responder := responders[0]
	for _, next := range responders[1:] {
		responder = responder.Then(next)
	}
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, itemURL, responder)

	metrics := scraper.NewMetrics()
	fetcher := scraper.NewCollyFetcher(cfg, metrics)
	fetcher.WithTransport(transport)
	crawler, err := scraper.NewCrawlerWithFetcher(cfg, fetcher, metrics)
	if err != nil {
		t.Fatalf("new crawler: %v", err)
	}
	return crawler
}

func htmlPage(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestRunItemMergesIntoStore(t *testing.T) {
	out := filepath.Join(t.TempDir(), "csv", "product_data.csv")
	crawler := newItemCrawler(t,
		htmlPage(detailHTML("A Light in the Attic", "a897fe39b1053632")),
		htmlPage(detailHTML("A Light in the Attic", "a897fe39b1053632")),
		htmlPage(detailHTML("A Light in the Attic, revised", "a897fe39b1053632")),
	)

	var buf bytes.Buffer
	for _, want := range []string{"inserted", "unchanged", "updated"} {
		buf.Reset()
		if err := runItem(context.Background(), crawler, itemURL, out, &buf); err != nil {
			t.Fatalf("run item: %v", err)
		}
		if !strings.Contains(buf.String(), want) || !strings.Contains(buf.String(), out) {
			t.Fatalf("output = %q, want outcome %q", buf.String(), want)
		}
	}

	records, err := pipeline.NewCSVStore(out).Records()
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.DetailURL != itemURL || r.Code() != "a897fe39b1053632" ||
		models.Value(r.Title) != "A Light in the Attic, revised" ||
		models.Value(r.Category) != "Poetry" || r.Rating != "3/5" {
		t.Fatalf("record = %+v", r)
	}
}

func TestRunItemFailures(t *testing.T) {
	t.Run("fetch error", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "product_data.csv")
		crawler := newItemCrawler(t, httpmock.NewStringResponder(http.StatusNotFound, ""))

		err := runItem(context.Background(), crawler, itemURL, out, &bytes.Buffer{})
		if !errors.Is(err, scraper.ErrExtractionFailed) {
			t.Fatalf("err = %v, want ErrExtractionFailed", err)
		}
		if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
			t.Fatalf("store should not exist, stat err = %v", statErr)
		}
	})

	t.Run("missing unique code", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "product_data.csv")
		crawler := newItemCrawler(t, htmlPage(detailHTML("No Code", "")))

		err := runItem(context.Background(), crawler, itemURL, out, &bytes.Buffer{})
		if err == nil || !strings.Contains(err.Error(), "unique code") {
			t.Fatalf("err = %v, want missing code error", err)
		}
		if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
			t.Fatalf("store should not exist, stat err = %v", statErr)
		}
	})
}
