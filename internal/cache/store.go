// Package cache provides the durable keyed store that makes every
// externally-costly pipeline operation idempotent and restart-safe. Four
// record kinds are persisted: place details, per-domain crawl results,
// per-(query,location) search progress, and an append-only failure ledger.
package cache

import (
	"context"

	"github.com/sells-group/lead-engine/internal/model"
)

// Stats summarizes cache contents.
type Stats struct {
	PlacesCached   int `json:"places_cached"`
	DomainsCrawled int `json:"domains_crawled"`
	Failures       int `json:"failures"`
}

// Store is the persistence contract for the pipeline. Every write is a
// single-row upsert; there are no cross-record invariants enforced at write
// time. Implementations treat a malformed stored payload as a miss for that
// entry rather than an error, so batch reads never abort on one bad row.
type Store interface {
	// Places
	GetPlace(ctx context.Context, placeID string) (*model.PlaceRecord, error)
	HasPlace(ctx context.Context, placeID string) (bool, error)
	SavePlace(ctx context.Context, rec *model.PlaceRecord) error
	ListPlacesByQuery(ctx context.Context, query, location string) ([]model.PlaceRecord, error)
	ListAllPlaces(ctx context.Context) ([]model.PlaceRecord, error)
	UniqueWebsites(ctx context.Context) ([]string, error)

	// Crawl results
	GetCrawlResult(ctx context.Context, domain string) (*model.CrawlResult, error)
	HasCrawlResult(ctx context.Context, domain string) (bool, error)
	SaveCrawlResult(ctx context.Context, res *model.CrawlResult) error

	// Search progress
	GetSearchProgress(ctx context.Context, query, location string) (*model.SearchProgress, error)
	SaveSearchProgress(ctx context.Context, p *model.SearchProgress) error

	// Failure ledger (append-only)
	SaveFailure(ctx context.Context, f *model.FailureRecord) error
	ListFailures(ctx context.Context, errorType string) ([]model.FailureRecord, error)
	ClearFailures(ctx context.Context, errorType string) (int, error)

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
