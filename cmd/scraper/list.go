package main

import (
	"fmt"

	"specscrape/internal/crawler"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list [--type <category>]",
	Short: "Prints the sitemap's product endpoints and whether each one is done.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		progress, closeProgress, err := newProgress(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeProgress()
		if err := progress.Load(ctx); err != nil {
			return err
		}

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		lister := &crawler.SitemapLister{Fetcher: client, URLTemplate: cfg.SitemapURL}
		entries, err := lister.List(ctx, cfg.ProductType)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		pattern := crawler.NewEndpointPattern(cfg.ProductType)
		done, products := 0, 0
		for _, e := range entries {
			endpoint, ok := pattern.Match(e.URL)
			if !ok {
				continue
			}
			products++
			status := "todo"
			if progress.Contains(endpoint) {
				status = "done"
				done++
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", status, endpoint, e.LastModified)
		}
		fmt.Fprintf(out, "%d of %d products done\n", done, products)
		return nil
	},
}
