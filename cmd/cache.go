package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the durable cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]int{
			"places_cached":   stats.PlacesCached,
			"domains_crawled": stats.DomainsCrawled,
			"failures":        stats.Failures,
		})
	},
}

var failuresType string

var cacheFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List recorded failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		failures, err := store.ListFailures(ctx, failuresType)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, f := range failures {
			if err := enc.Encode(f); err != nil {
				return err
			}
		}
		return nil
	},
}

var clearFailuresCmd = &cobra.Command{
	Use:   "clear-failures",
	Short: "Delete recorded failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.ClearFailures(ctx, failuresType)
		if err != nil {
			return err
		}
		zap.L().Info("failures cleared", zap.Int("count", n), zap.String("error_type", failuresType))
		return nil
	},
}

func init() {
	cacheFailuresCmd.Flags().StringVar(&failuresType, "type", "", "filter by error type (search, search_timeout, transport, place_details, crawl_timeout)")
	clearFailuresCmd.Flags().StringVar(&failuresType, "type", "", "clear only this error type")
	cacheCmd.AddCommand(cacheStatsCmd, cacheFailuresCmd, clearFailuresCmd)
	rootCmd.AddCommand(cacheCmd)
}
