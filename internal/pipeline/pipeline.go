// Package pipeline orchestrates acquisition, dedupe, crawl, merge, and
// export into a single run.
package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-engine/internal/cache"
	"github.com/sells-group/lead-engine/internal/crawler"
	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/output"
	"github.com/sells-group/lead-engine/internal/places"
)

// QueryLocation is one search to run.
type QueryLocation struct {
	Query    string
	Location string
}

// Options tunes a pipeline run.
type Options struct {
	CrawlEnabled     bool
	CrawlConcurrency int // default 5
	WriteXLSX        bool
}

// Summary reports what a run did.
type Summary struct {
	RunID             string
	Queries           int
	PlacesSeen        int
	Leads             int
	DuplicatesPlaceID int
	DuplicatesPhone   int
	DuplicatesDomain  int
	DomainsCrawled    int
	EmailsFound       int
	QueryErrors       int
	APICalls          int
	CacheHits         int
}

// Pipeline wires the stages together.
type Pipeline struct {
	searcher *places.Searcher
	crawler  *crawler.Crawler
	store    cache.Store
	writer   *output.Writer
	opts     Options
}

// New creates a Pipeline. The writer may be nil when no files should be
// produced (e.g. the HTTP trigger path).
func New(searcher *places.Searcher, crawl *crawler.Crawler, store cache.Store, writer *output.Writer, opts Options) *Pipeline {
	if opts.CrawlConcurrency <= 0 {
		opts.CrawlConcurrency = 5
	}
	return &Pipeline{
		searcher: searcher,
		crawler:  crawl,
		store:    store,
		writer:   writer,
		opts:     opts,
	}
}

// Run executes the pipeline over the query list and returns the final
// leads. A failing query degrades the run instead of aborting it; the error
// count lands in the summary.
func (p *Pipeline) Run(ctx context.Context, queries []QueryLocation) ([]*model.Lead, *Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Queries: len(queries),
	}
	log := zap.L().With(zap.String("run_id", summary.RunID))
	log.Info("pipeline run starting", zap.Int("queries", len(queries)))

	deduper := dedupe.New()
	var leads []*model.Lead

	for i, q := range queries {
		recCh, errCh := p.searcher.Search(ctx, q.Query, q.Location)
		for rec := range recCh {
			summary.PlacesSeen++
			if lead := deduper.Add(&rec); lead != nil {
				leads = append(leads, lead)
			}
		}
		if err := <-errCh; err != nil {
			if i == 0 && summary.PlacesSeen == 0 {
				// nothing acquired yet, so there is no partial run to salvage
				return nil, nil, eris.Wrap(err, "pipeline: first query failed")
			}
			summary.QueryErrors++
			log.Warn("query failed, continuing",
				zap.String("query", q.Query),
				zap.String("location", q.Location),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil, nil, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}
	}

	dedupeStats := deduper.Stats()
	summary.Leads = len(leads)
	summary.DuplicatesPlaceID = dedupeStats.DuplicatesPlaceID
	summary.DuplicatesPhone = dedupeStats.DuplicatesPhone
	summary.DuplicatesDomain = dedupeStats.DuplicatesDomain

	if p.opts.CrawlEnabled {
		if err := p.crawlAndMerge(ctx, leads, summary); err != nil {
			return nil, nil, err
		}
	}

	for _, lead := range leads {
		summary.EmailsFound += len(lead.Emails)
	}
	searchStats := p.searcher.Stats()
	summary.APICalls = searchStats.APICalls
	summary.CacheHits = searchStats.CacheHits

	if p.writer != nil {
		if err := p.export(ctx, leads); err != nil {
			return nil, nil, err
		}
	}

	log.Info("pipeline run finished",
		zap.Int("places_seen", summary.PlacesSeen),
		zap.Int("leads", summary.Leads),
		zap.Int("duplicates_place_id", summary.DuplicatesPlaceID),
		zap.Int("duplicates_phone", summary.DuplicatesPhone),
		zap.Int("duplicates_domain", summary.DuplicatesDomain),
		zap.Int("domains_crawled", summary.DomainsCrawled),
		zap.Int("emails_found", summary.EmailsFound),
		zap.Int("query_errors", summary.QueryErrors),
		zap.Int("api_calls", summary.APICalls),
		zap.Int("cache_hits", summary.CacheHits))

	return leads, summary, nil
}

// crawlAndMerge crawls each lead's website and merges the discovered emails
// back onto the lead. Leads hold unique domains after dedupe, so each
// goroutine owns its lead. Crawl failures degrade to leads without emails.
func (p *Pipeline) crawlAndMerge(ctx context.Context, leads []*model.Lead, summary *Summary) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.CrawlConcurrency)

	crawled := make([]bool, len(leads))
	for i, lead := range leads {
		if lead.Website == "" {
			continue
		}
		g.Go(func() error {
			res, err := p.crawler.Crawl(ctx, lead.Website)
			if err != nil {
				zap.L().Warn("crawl failed",
					zap.String("website", lead.Website), zap.Error(err))
				return nil
			}
			crawled[i] = true
			if res.Success {
				dedupe.MergeEmails(lead, res.Emails)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: crawl")
	}

	for _, ok := range crawled {
		if ok {
			summary.DomainsCrawled++
		}
	}
	return nil
}

func (p *Pipeline) export(ctx context.Context, leads []*model.Lead) error {
	if err := p.writer.WriteLeads(leads); err != nil {
		return err
	}
	if p.opts.WriteXLSX {
		if err := p.writer.WriteXLSX(leads); err != nil {
			return err
		}
	}
	failures, err := p.store.ListFailures(ctx, "")
	if err != nil {
		return err
	}
	return p.writer.WriteFailures(failures)
}

// ReadQueriesCSV parses a queries file with "query,location" rows. A header
// row whose first cell is "query" is skipped. Blank lines are ignored.
func ReadQueriesCSV(path string) ([]QueryLocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open queries file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var queries []QueryLocation
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: read queries row")
		}
		skipHeader := first && strings.EqualFold(strings.TrimSpace(record[0]), "query")
		first = false
		if skipHeader {
			continue
		}

		q := QueryLocation{Query: strings.TrimSpace(record[0])}
		if len(record) > 1 {
			q.Location = strings.TrimSpace(record[1])
		}
		if q.Query == "" {
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, eris.New("pipeline: queries file has no rows")
	}
	return queries, nil
}
