package main

import (
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

const separator = "--------------------------------------------------"

func printSummary(result *models.CrawlResult, duration time.Duration, metrics map[string]interface{}, master *pipeline.MasterWriter, categories *pipeline.CategoryWriter, export *pipeline.ExportWriter, cfg *config.Config) {
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	totalItems := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		totalItems = processed
	}
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(totalItems) / duration.Seconds()
	}

	fmt.Printf("  Categories:    %d\n", len(result.Categories))
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Extracted:     %d\n", result.TotalCount)
	fmt.Printf("  Stored:        %d\n", totalItems)
	fmt.Printf("  Skipped URLs:  %d\n", result.SkippedCount)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Master:        %v\n", master.Outcomes())
	if n := master.Failures() + categories.Failures(); n > 0 {
		fmt.Printf("  Store errors:  %d\n", n)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Master store:  %s\n", cfg.MasterPath())
	fmt.Printf("  Category dir:  %s\n", cfg.CategoriesDir())
	if export != nil {
		fmt.Printf("  Export:        %s (%d records)\n", export.Path(), export.Total())
	}
	fmt.Println(separator)
}

func printImageReport(report *models.ImageReport, dir string) {
	fmt.Println("\n" + separator)
	fmt.Println("Image sync complete")
	fmt.Printf("  Rows:            %d\n", report.TotalRows)
	fmt.Printf("  Eligible:        %d\n", report.Eligible)
	fmt.Printf("  Downloaded:      %d\n", report.Downloaded)
	fmt.Printf("  Already present: %d\n", report.AlreadyPresent)
	fmt.Printf("  Recovered:       %d\n", report.Recovered)
	fmt.Printf("  Failed:          %d\n", len(report.Failed))

	if missing := report.Missing(); len(missing) > 0 {
		fmt.Printf("  No image URL (%d):\n", len(missing))
		for _, m := range missing {
			fmt.Printf("    - %s\n", m.Title)
		}
	}
	if unsupported := report.Unsupported(); len(unsupported) > 0 {
		fmt.Printf("  Unsupported URL (%d):\n", len(unsupported))
		for _, m := range unsupported {
			fmt.Printf("    - %s: %s\n", m.Title, m.URL)
		}
	}
	for _, u := range report.Failed {
		fmt.Printf("  Failed: %s\n", u)
	}
	fmt.Printf("  Directory:       %s\n", dir)
	fmt.Println(separator)
}
