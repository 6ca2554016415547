package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-catalog/assets"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Download the images referenced by the master store",
	Long: `Read the master store and download every image whose URL uses http or
https and an allowed extension. Images already on disk are skipped, so the
command can be re-run to resume an interrupted sync. Failed downloads are
retried once after --retry-delay.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		return syncImages(cmd.Context(), cfg, nil)
	},
}

func init() {
	rootCmd.AddCommand(imagesCmd)
}

func syncImages(ctx context.Context, cfg *config.Config, recorder assets.Recorder) error {
	syncer := assets.NewSyncer(cfg, recorder)
	report, err := syncer.SyncImages(ctx, cfg.MasterPath(), cfg.ImageDir)
	if report != nil {
		printImageReport(report, cfg.ImageDir)
	}
	if err != nil {
		return fmt.Errorf("sync images: %w", err)
	}
	if len(report.Failed) > 0 {
		slog.Warn("some images could not be downloaded", slog.Int("failed", len(report.Failed)))
	}
	return nil
}
