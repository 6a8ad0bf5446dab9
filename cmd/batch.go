package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/pipeline"
)

var (
	batchFile   string
	batchResume bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the pipeline for every query in a CSV file",
	Long:  "Reads query,location rows from a CSV file and runs them all through one pipeline, deduplicating across queries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		queries, err := pipeline.ReadQueriesCSV(batchFile)
		if err != nil {
			return err
		}

		if batchResume {
			cfg.Places.Resume = true
		}

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		leads, summary, err := env.Pipeline.Run(ctx, queries)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("batch complete",
			zap.Int("queries", summary.Queries),
			zap.Int("leads", len(leads)),
			zap.Int("query_errors", summary.QueryErrors),
			zap.Int("emails_found", summary.EmailsFound),
			zap.String("csv", env.Writer.CSVPath()))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV file with query,location rows")
	batchCmd.Flags().BoolVar(&batchResume, "resume", false, "resume from saved search progress")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
