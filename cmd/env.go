package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/cache"
	"github.com/sells-group/lead-engine/internal/crawler"
	"github.com/sells-group/lead-engine/internal/output"
	"github.com/sells-group/lead-engine/internal/pipeline"
	"github.com/sells-group/lead-engine/internal/places"
	"github.com/sells-group/lead-engine/internal/resilience"
	placesapi "github.com/sells-group/lead-engine/pkg/places"
)

// env holds the wired pipeline and its store for a command invocation.
type env struct {
	Store    cache.Store
	Pipeline *pipeline.Pipeline
	Writer   *output.Writer
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initStore opens and migrates the configured cache backend.
func initStore(ctx context.Context) (cache.Store, error) {
	var (
		store cache.Store
		err   error
	)
	switch cfg.Cache.Driver {
	case "postgres":
		store, err = cache.NewPostgres(ctx, cfg.Cache.DatabaseURL, &cache.PoolConfig{
			MaxConns: cfg.Cache.MaxConns,
			MinConns: cfg.Cache.MinConns,
		})
	default:
		store, err = cache.NewSQLite(cfg.Cache.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// initPipeline validates config and wires the full pipeline.
func initPipeline(ctx context.Context, withWriter bool) (*env, error) {
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, eris.New("invalid configuration:\n  " + strings.Join(problems, "\n  "))
	}

	store, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	var clientOpts []placesapi.Option
	if cfg.Places.BaseURL != "" {
		clientOpts = append(clientOpts, placesapi.WithBaseURL(cfg.Places.BaseURL))
	}
	client := placesapi.NewClient(cfg.Places.APIKey, clientOpts...)

	searcher := places.NewSearcher(client, store, places.Config{
		QPS:         cfg.Places.QPS,
		MaxResults:  cfg.Places.MaxResults,
		MaxPages:    cfg.Places.MaxPages,
		PageDelay:   time.Duration(cfg.Places.PageDelayMs) * time.Millisecond,
		DetailDelay: time.Duration(cfg.Places.SleepMs) * time.Millisecond,
		Resume:      cfg.Places.Resume,
		Retry:       resilience.FromRetrySettings(cfg.Places.Retries, 0, 0, 0, -1),
	})

	crawl := crawler.New(store, crawler.Config{
		MaxPages:       cfg.Crawl.MaxPages,
		DomainTimeout:  time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		RequestTimeout: time.Duration(cfg.Crawl.RequestTimeoutSecs) * time.Second,
		RequestDelay:   time.Duration(cfg.Crawl.RequestDelayMs) * time.Millisecond,
		UserAgent:      cfg.Crawl.UserAgent,
		NoCache:        cfg.Crawl.NoCache,
		Retry: resilience.FromRetrySettings(
			cfg.Crawl.Retries, int(time.Second/time.Millisecond),
			int(10*time.Second/time.Millisecond), 0, -1),
	})

	var writer *output.Writer
	if withWriter {
		writer, err = output.NewWriter(cfg.Output.Dir, cfg.Output.Prefix)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	p := pipeline.New(searcher, crawl, store, writer, pipeline.Options{
		CrawlEnabled:     cfg.Crawl.Enabled,
		CrawlConcurrency: cfg.Crawl.Concurrency,
		WriteXLSX:        cfg.Output.XLSX,
	})

	return &env{Store: store, Pipeline: p, Writer: writer}, nil
}
