package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl every category into the master and category stores",
	Long: `Discover the categories of the catalog, walk each paginated listing and
extract every item. Records go to the category stores first, then to the
master store. When the master store is missing or empty afterwards it is
rebuilt from the category stores.`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	d := config.DefaultConfig()
	flags := crawlCmd.Flags()
	flags.String("format", d.OutputFormat, "output format: csv, or dual for an extra JSONL export")
	flags.String("write-mode", d.WriteMode, "master store writes: batch or incremental")
	flags.Int("batch-size", d.BatchSize, "records per master write in batch mode")
	flags.Int("dedupe-max-size", d.DedupeMaxSize, "detail URLs remembered to skip repeats within a run")
	flags.Bool("images", false, "download images once the crawl is done")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	bindFlags(flags)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.String("csv_dir", cfg.CSVDir),
		slog.String("write_mode", cfg.WriteMode),
		slog.String("format", cfg.OutputFormat),
	)

	crawler, err := scraper.NewCrawler(cfg)
	if err != nil {
		return fmt.Errorf("initialising crawler: %w", err)
	}

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, crawler.Metrics.Registry)
		defer stop()
	}

	categories := pipeline.NewCategoryWriter(cfg.CSVDir)
	master := pipeline.NewMasterWriter(cfg.MasterPath(), cfg.WriteMode)
	writers := []pipeline.OutputWriter{categories, master}
	var export *pipeline.ExportWriter
	if cfg.OutputFormat == "dual" {
		export, err = pipeline.NewExportWriter(cfg.ExportPath())
		if err != nil {
			return fmt.Errorf("creating export: %w", err)
		}
		writers = append(writers, export)
	}

	p := pipeline.NewPipeline(pipeline.NewMultiWriter(writers...), cfg)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := crawler.Run(ctx, p)
	if closeErr := p.Close(); closeErr != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", closeErr))
	}
	if errors.Is(runErr, scraper.ErrNoCategories) {
		return runErr
	}
	if runErr != nil {
		slog.Error("crawl stopped early", slog.Any("error", runErr))
	}

	if err := ensureMaster(cfg, master); err != nil {
		return err
	}

	if result != nil {
		printSummary(result, time.Since(startTime), p.GetMetrics(), master, categories, export, cfg)
	}

	if viper.GetBool("images") && ctx.Err() == nil {
		if err := syncImages(ctx, cfg, crawler.Metrics); err != nil {
			return err
		}
	}
	return runErr
}

// ensureMaster falls back to rebuilding the master store from the category
// stores when it fails validation.
func ensureMaster(cfg *config.Config, master *pipeline.MasterWriter) error {
	err := master.Validate()
	if err == nil {
		return nil
	}
	slog.Warn("master store invalid, rebuilding from category stores",
		slog.String("path", cfg.MasterPath()),
		slog.Any("reason", err),
	)
	rows, err := pipeline.RebuildMasterFromCategories(cfg.MasterPath(), cfg.CategoriesDir())
	if err != nil {
		return fmt.Errorf("rebuild master store: %w", err)
	}
	slog.Info("master store rebuilt", slog.String("path", cfg.MasterPath()), slog.Int("rows", rows))
	return nil
}

// serveMetrics exposes registry on addr and returns a shutdown func.
func serveMetrics(addr string, registry *prometheus.Registry) func() {
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}
