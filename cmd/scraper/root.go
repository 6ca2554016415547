package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configErr error

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Crawl a paginated catalog into CSV stores and mirror its images",
	Long: `scraper walks every category of a catalog site, extracts one record per
item and merges them into a master CSV store plus one store per category.
Stores are keyed by universal product code, so re-runs never duplicate rows.

Examples:
  # Crawl the demo catalog and download cover images
  scraper crawl --images

  # Write every record as it arrives, and export JSONL next to the CSV
  scraper crawl --write-mode incremental --format dual

  # Rebuild a damaged master store from the category stores
  scraper rebuild --csv-dir output/csv

Every flag can also be set in scraper.yaml or as SCRAPER_<FLAG>, e.g.
SCRAPER_BASE_URL or SCRAPER_IMAGE_DIR.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return fmt.Errorf("read config: %w", configErr)
		}
		logger, level := newLogger(viper.GetBool("verbose"))
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	d := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./scraper.yaml)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("base-url", d.BaseURL, "catalog root URL")
	flags.String("csv-dir", d.CSVDir, "directory holding the master and category stores")
	flags.String("master-file", d.MasterFile, "master store file name")
	flags.String("image-dir", d.ImageDir, "directory for downloaded images")
	flags.StringSlice("image-ext", d.ImageExtensions, "image extensions eligible for download")
	flags.Duration("timeout", d.Timeout, "timeout for every page and first-pass image request")
	flags.Duration("retry-delay", d.RetryDelay, "wait before retrying failed image downloads")
	flags.Duration("retry-timeout", d.RetryTimeout, "timeout for image retries")
	flags.String("user-agent", d.UserAgent, "User-Agent header")
	bindFlags(flags)
}

// bindFlags exposes every flag to viper under its snake_case key, which is
// also the SCRAPER_ environment suffix.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(configKey(f.Name), f)
	})
}

func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("scraper")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SCRAPER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = err
		}
	}
}

// loadConfig resolves flags, environment and config file into a validated
// Config. Keys nobody set fall back to the defaults.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.DefaultConfig()
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("retry_delay", cfg.RetryDelay)
	v.SetDefault("retry_timeout", cfg.RetryTimeout)
	v.SetDefault("csv_dir", cfg.CSVDir)
	v.SetDefault("master_file", cfg.MasterFile)
	v.SetDefault("image_dir", cfg.ImageDir)
	v.SetDefault("image_ext", cfg.ImageExtensions)
	v.SetDefault("format", cfg.OutputFormat)
	v.SetDefault("write_mode", cfg.WriteMode)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("dedupe_max_size", cfg.DedupeMaxSize)
	v.SetDefault("user_agent", cfg.UserAgent)

	cfg.BaseURL = v.GetString("base_url")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.RetryDelay = v.GetDuration("retry_delay")
	cfg.RetryTimeout = v.GetDuration("retry_timeout")
	cfg.CSVDir = v.GetString("csv_dir")
	cfg.MasterFile = v.GetString("master_file")
	cfg.ImageDir = v.GetString("image_dir")
	cfg.ImageExtensions = normalizeExtensions(v.GetStringSlice("image_ext"))
	cfg.OutputFormat = strings.ToLower(v.GetString("format"))
	cfg.WriteMode = strings.ToLower(v.GetString("write_mode"))
	cfg.BatchSize = v.GetInt("batch_size")
	cfg.DedupeMaxSize = v.GetInt("dedupe_max_size")
	cfg.UserAgent = v.GetString("user_agent")
	cfg.Verbose = v.GetBool("verbose")
	cfg.MetricsAddr = v.GetString("metrics_addr")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
