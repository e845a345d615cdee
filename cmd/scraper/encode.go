package main

import (
	"fmt"
	"time"

	"specscrape/internal/crawler"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(encodeKeyCmd)
}

var encodeKeyCmd = &cobra.Command{
	Use:   "encode-key <endpoint>",
	Short: "Prints the page-info API URL for a product endpoint such as /mobiles/<slug>.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		u, err := crawler.PageInfoURL(cfg.PageInfoBase, args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}
