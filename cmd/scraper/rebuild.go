package main

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the master store from the category stores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		rows, err := pipeline.RebuildMasterFromCategories(cfg.MasterPath(), cfg.CategoriesDir())
		if err != nil {
			return fmt.Errorf("rebuild master store: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %s with %d rows\n", cfg.MasterPath(), rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
