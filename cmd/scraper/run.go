package main

import (
	"context"
	"fmt"
	"time"

	"specscrape/internal/crawler"
	"specscrape/internal/db"
	"specscrape/internal/observability"
	"specscrape/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
)

var (
	runBatch  int
	runSource string
	runReset  bool
)

func init() {
	runCmd.Flags().IntVar(&runBatch, "batch", 0, "Max new products this run, 0 for no limit (default from config).")
	runCmd.Flags().StringVar(&runSource, "source", "", "Where product data is read from: api or html.")
	runCmd.Flags().BoolVar(&runReset, "reset", false, "Drop progress first and re-scrape the whole sitemap.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--type <category>] [--batch <n>] [--reset]",
	Short: "Scrapes the next batch of products and appends them to the category CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("batch") {
			cfg.BatchSize = runBatch
		}
		if runSource != "" {
			cfg.Source = runSource
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		runID := uuid.New().String()
		logger := log.WithFields(log.Fields{"run_id": runID, "type": cfg.ProductType})

		if cfg.MetricsPort != "" {
			srv := observability.Start(cfg.MetricsPort)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		lock, err := repository.AcquireLock(cfg.LockPath(), cfg.LockTTL(), runID)
		if err != nil {
			return err
		}
		defer lock.Release()
		lock.KeepAlive(cfg.LockTTL() / 4)

		progress, closeProgress, err := newProgress(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeProgress()
		if runReset {
			logger.Warn("resetting progress")
			if err := progress.Reset(ctx); err != nil {
				return err
			}
		}

		writer, err := repository.OpenCSV(cfg.CSVPath())
		if err != nil {
			return err
		}

		client, err := newClient(cfg)
		if err != nil {
			return err
		}

		runner := &crawler.Runner{
			ProductType: cfg.ProductType,
			BatchSize:   cfg.BatchSize,
			Lister:      &crawler.SitemapLister{Fetcher: client, URLTemplate: cfg.SitemapURL},
			Fetcher:     client,
			Source:      newSource(cfg),
			Progress:    progress,
			Writer:      writer,
			RunID:       runID,
		}

		if cfg.DatabaseURL != "" {
			pool, err := db.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			archive := &repository.RawRepository{DB: pool, ProductType: cfg.ProductType, RunID: runID}
			if err := archive.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("create archive table: %w", err)
			}
			runner.Archive = archive
		}

		started := time.Now()
		sum, err := runner.Run(ctx)
		logger.WithFields(log.Fields{
			"processed":      sum.Processed,
			"skipped":        sum.Skipped,
			"fetch_failures": sum.FetchFailures,
			"parse_failures": sum.ParseFailures,
			"already_done":   sum.AlreadyDone,
			"deferred":       sum.Deferred,
			"reconciled":     sum.Reconciled,
			"orphaned":       sum.Orphaned,
			"progress":       progress.Len(),
			"csv":            writer.Path(),
			"elapsed":        time.Since(started).Round(time.Second),
		}).Info("run finished")
		return err
	},
}
