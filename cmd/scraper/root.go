package main

import (
	"specscrape/internal/config"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
)

var (
	configPath  string
	productType string
	dataDir     string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:           "scraper",
	Short:         "scraper collects product specifications from a category sitemap into a CSV.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "scraper.json5", "Config file; a .local sibling is merged over it.")
	flags.StringVar(&productType, "type", "", "Product category, overrides PRODUCT_TYPE.")
	flags.StringVar(&dataDir, "data-dir", "", "Directory holding <type>/<type>.csv and the progress file.")
	flags.StringVar(&logLevel, "loglevel", "", "Log level (debug, info, warn, error).")
}

// loadConfig reads the config and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if productType != "" {
		cfg.ProductType = productType
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	return cfg, nil
}
