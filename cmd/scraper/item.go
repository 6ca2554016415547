package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// itemStoreFile is the default store for single-item extraction, kept
// apart from the master store.
const itemStoreFile = "product_data.csv"

var itemCmd = &cobra.Command{
	Use:   "item <url>",
	Short: "Extract one detail page into a CSV store",
	Long: `Fetch a single detail page, extract its record and merge it into a CSV
store keyed by the unique code. Running it again for the same page leaves
the store unchanged unless the page changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		out, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}
		if out == "" {
			out = filepath.Join(cfg.CSVDir, itemStoreFile)
		}

		crawler, err := scraper.NewCrawler(cfg)
		if err != nil {
			return fmt.Errorf("initialising crawler: %w", err)
		}
		return runItem(cmd.Context(), crawler, args[0], out, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.Flags().String("out", "", "CSV store to merge into (default <csv-dir>/"+itemStoreFile+")")
}

func runItem(ctx context.Context, crawler *scraper.Crawler, detailURL, out string, w io.Writer) error {
	record, err := crawler.ExtractItem(ctx, detailURL)
	if err != nil {
		return err
	}
	if err := parser.ValidateRecord(record); err != nil {
		return fmt.Errorf("extract %s: %w", detailURL, err)
	}

	outcome, err := pipeline.NewCSVStore(out).UpsertOne(record)
	if err != nil {
		return fmt.Errorf("store %s: %w", out, err)
	}
	slog.Info("item stored",
		slog.String("url", detailURL),
		slog.String("code", record.Code()),
		slog.String("outcome", outcome.String()),
	)
	fmt.Fprintf(w, "Data has been written to %s (%s %s)\n", out, outcome, record.Code())
	return nil
}
