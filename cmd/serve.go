package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/pipeline"
)

var servePort int

// leadRunner is the pipeline surface the HTTP handlers need.
type leadRunner func(ctx context.Context, queries []pipeline.QueryLocation) ([]*model.Lead, *pipeline.Summary, error)

type leadsRequest struct {
	Query    string `json:"query"`
	Location string `json:"location"`
}

type leadsResponse struct {
	RunID string        `json:"run_id"`
	Count int           `json:"count"`
	Leads []*model.Lead `json:"leads"`
}

// newServeMux builds the HTTP routes around a pipeline runner.
func newServeMux(run leadRunner) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/leads", func(w http.ResponseWriter, r *http.Request) {
		var req leadsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}

		leads, summary, err := run(r.Context(), []pipeline.QueryLocation{
			{Query: req.Query, Location: req.Location},
		})
		if err != nil {
			zap.L().Error("lead run failed",
				zap.String("query", req.Query), zap.Error(err))
			http.Error(w, `{"error":"pipeline run failed"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(leadsResponse{
			RunID: summary.RunID,
			Count: len(leads),
			Leads: leads,
		})
	})

	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server that runs lead searches on request",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// No writer: results go back over HTTP, not to export files.
		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(env.Pipeline.Run),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
