package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/pipeline"
)

var (
	runQuery    string
	runLocation string
	runNoCrawl  bool
	runResume   bool
	runNoCache  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for a single query",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runNoCrawl {
			cfg.Crawl.Enabled = false
		}
		if runResume {
			cfg.Places.Resume = true
		}
		if runNoCache {
			cfg.Crawl.NoCache = true
		}

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		leads, summary, err := env.Pipeline.Run(ctx, []pipeline.QueryLocation{
			{Query: runQuery, Location: runLocation},
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.Int("leads", len(leads)),
			zap.Int("emails_found", summary.EmailsFound),
			zap.String("csv", env.Writer.CSVPath()))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", "search query, e.g. \"plumbers\"")
	runCmd.Flags().StringVar(&runLocation, "location", "", "location, e.g. \"Austin, TX\"")
	runCmd.Flags().BoolVar(&runNoCrawl, "no-crawl", false, "skip website crawling")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from saved search progress")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "re-crawl domains even when cached")
	_ = runCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(runCmd)
}
