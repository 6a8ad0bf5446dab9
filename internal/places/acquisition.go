// Package places acquires place records from the Places API with rate
// limiting, caching, and resumable pagination.
package places

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-engine/internal/cache"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
	placesapi "github.com/sells-group/lead-engine/pkg/places"
)

// Config tunes the searcher.
type Config struct {
	// QPS caps outbound API requests per second. Default: 10.
	QPS float64

	// MaxResults caps how many results a single query yields. Default: 60,
	// the most the text search endpoint pages out.
	MaxResults int

	// MaxPages caps search pages per query, clamped to [1, 3]. Default: 3.
	MaxPages int

	// PageDelay is the wait before a next_page_token is used; tokens are
	// not valid immediately after being issued. Default: 2s.
	PageDelay time.Duration

	// DetailDelay is the pause after each yielded record. Default: none.
	DetailDelay time.Duration

	// Resume replays cached records and continues from saved progress
	// instead of starting the query fresh. Default: off.
	Resume bool

	// Retry is the policy for API calls. Zero value uses defaults.
	Retry resilience.Policy
}

func (c Config) withDefaults() Config {
	if c.QPS <= 0 {
		c.QPS = 10
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 60
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 3
	}
	if c.MaxPages > 3 {
		c.MaxPages = 3
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	} else if c.PageDelay == 0 {
		c.PageDelay = 2 * time.Second
	}
	if c.DetailDelay < 0 {
		c.DetailDelay = 0
	}
	return c
}

// Stats counts searcher activity. Cached replays cost no API calls.
type Stats struct {
	APICalls  int
	CacheHits int
	Fetched   int
	Failures  int
}

// Searcher streams place records for queries, consulting the cache before
// the API and checkpointing progress after every page.
type Searcher struct {
	client placesapi.Client
	store  cache.Store
	cfg    Config

	limiter *rate.Limiter

	mu    sync.Mutex
	stats Stats
}

// NewSearcher creates a Searcher backed by the given client and cache.
func NewSearcher(client placesapi.Client, store cache.Store, cfg Config) *Searcher {
	cfg = cfg.withDefaults()
	return &Searcher{
		client:  client,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	}
}

// Stats returns a snapshot of the searcher's counters.
func (s *Searcher) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Searcher) count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

// SearchText builds the text sent to the search endpoint.
func SearchText(query, location string) string {
	if location == "" {
		return query
	}
	return query + " in " + location
}

// Search streams place records for one query. Caller must consume the
// record channel. At most one error is sent on the error channel; both
// channels are closed when the query finishes. A query whose progress is
// marked completed replays from cache without any API calls.
func (s *Searcher) Search(ctx context.Context, query, location string) (<-chan model.PlaceRecord, <-chan error) {
	recCh := make(chan model.PlaceRecord, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)
		if err := s.run(ctx, query, location, recCh); err != nil {
			errCh <- err
		}
	}()

	return recCh, errCh
}

func (s *Searcher) run(ctx context.Context, query, location string, recCh chan<- model.PlaceRecord) error {
	log := zap.L().With(zap.String("query", query), zap.String("location", location))

	seen := make(map[string]bool)
	token := ""
	fetched := 0

	if s.cfg.Resume {
		progress, err := s.store.GetSearchProgress(ctx, query, location)
		if err != nil {
			return err
		}
		if progress != nil && progress.Completed {
			log.Info("query already completed, replaying from cache",
				zap.Int("results_fetched", progress.ResultsFetched))
			return s.replay(ctx, query, location, seen, recCh)
		}
		if progress != nil {
			token = progress.NextPageToken
			fetched = progress.ResultsFetched
			log.Info("resuming query", zap.Int("results_fetched", fetched))
			// Re-emit what earlier runs already fetched before paging on.
			if err := s.replay(ctx, query, location, seen, recCh); err != nil {
				return err
			}
		}
	}

	for pages := 0; pages < s.cfg.MaxPages; pages++ {
		// Tokens need a moment before they are accepted.
		if token != "" {
			timer := time.NewTimer(s.cfg.PageDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		page, err := s.fetchPage(ctx, query, location, token)
		if err != nil {
			s.count(func(st *Stats) { st.Failures++ })
			s.recordSearchFailure(ctx, err)
			return err
		}

		for _, result := range page.Results {
			if fetched >= s.cfg.MaxResults {
				break
			}
			if seen[result.PlaceID] {
				continue
			}
			seen[result.PlaceID] = true

			rec, err := s.resolvePlace(ctx, result, query, location)
			if err != nil {
				s.count(func(st *Stats) { st.Failures++ })
				log.Warn("place details failed",
					zap.String("place_id", result.PlaceID), zap.Error(err))
				continue
			}
			fetched++

			select {
			case recCh <- *rec:
			case <-ctx.Done():
				return ctx.Err()
			}

			if s.cfg.DetailDelay > 0 {
				timer := time.NewTimer(s.cfg.DetailDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		token = page.NextPageToken
		completed := token == "" || fetched >= s.cfg.MaxResults

		if err := s.store.SaveSearchProgress(ctx, &model.SearchProgress{
			Query:          query,
			Location:       location,
			NextPageToken:  token,
			ResultsFetched: fetched,
			Completed:      completed,
		}); err != nil {
			return err
		}

		if completed {
			log.Info("query completed", zap.Int("results_fetched", fetched))
			return nil
		}
		if len(page.Results) == 0 {
			log.Info("empty results page, stopping", zap.Int("results_fetched", fetched))
			return nil
		}
	}

	log.Info("page budget reached", zap.Int("results_fetched", fetched))
	return nil
}

// replay re-emits cached records for the query without touching the API,
// skipping place ids already seen this run and marking the rest.
func (s *Searcher) replay(ctx context.Context, query, location string, seen map[string]bool, recCh chan<- model.PlaceRecord) error {
	records, err := s.store.ListPlacesByQuery(ctx, query, location)
	if err != nil {
		return err
	}
	for i := range records {
		if seen[records[i].PlaceID] {
			continue
		}
		seen[records[i].PlaceID] = true
		s.count(func(st *Stats) { st.CacheHits++ })
		select {
		case recCh <- records[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Searcher) fetchPage(ctx context.Context, query, location, token string) (*placesapi.SearchPage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	policy := s.cfg.Retry
	policy.OnRetry = resilience.RetryLogger("places", "text_search")
	return resilience.DoVal(ctx, policy, func(ctx context.Context) (*placesapi.SearchPage, error) {
		s.count(func(st *Stats) { st.APICalls++ })
		return s.client.TextSearch(ctx, SearchText(query, location), token)
	})
}

// resolvePlace returns the cached record for the place, or fetches details
// from the API and caches them.
func (s *Searcher) resolvePlace(ctx context.Context, summary placesapi.PlaceSummary, query, location string) (*model.PlaceRecord, error) {
	cached, err := s.store.GetPlace(ctx, summary.PlaceID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		s.count(func(st *Stats) { st.CacheHits++ })
		return cached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	policy := s.cfg.Retry
	policy.OnRetry = resilience.RetryLogger("places", "details")
	detail, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (*placesapi.PlaceDetail, error) {
		s.count(func(st *Stats) { st.APICalls++ })
		return s.client.Details(ctx, summary.PlaceID)
	})
	if err != nil {
		s.recordDetailsFailure(ctx, summary.PlaceID, err)
		return nil, err
	}

	rec := &model.PlaceRecord{
		PlaceID:            detail.PlaceID,
		Name:               detail.Name,
		Address:            detail.FormattedAddress,
		Phone:              detail.PhoneNumber,
		InternationalPhone: detail.InternationalPhone,
		Website:            detail.Website,
		Types:              detail.Types,
		Rating:             detail.Rating,
		UserRatingsTotal:   detail.UserRatingsTotal,
		SourceQuery:        query,
		SourceLocation:     location,
		FetchedAt:          time.Now().UTC(),
		Raw:                detail.Raw,
	}
	if rec.PlaceID == "" {
		rec.PlaceID = summary.PlaceID
	}
	if err := s.store.SavePlace(ctx, rec); err != nil {
		return nil, err
	}
	s.count(func(st *Stats) { st.Fetched++ })
	return rec, nil
}

func (s *Searcher) recordSearchFailure(ctx context.Context, err error) {
	errType := model.FailureSearch
	if apiErr, ok := placesapi.AsAPIError(err); ok {
		switch apiErr.Kind {
		case placesapi.KindTimeout:
			errType = model.FailureSearchTimeout
		case placesapi.KindTransport:
			errType = model.FailureTransport
		}
	}
	if saveErr := s.store.SaveFailure(ctx, &model.FailureRecord{
		ErrorType:    errType,
		ErrorMessage: err.Error(),
	}); saveErr != nil {
		zap.L().Error("failed to record search failure", zap.Error(saveErr))
	}
}

func (s *Searcher) recordDetailsFailure(ctx context.Context, placeID string, err error) {
	if saveErr := s.store.SaveFailure(ctx, &model.FailureRecord{
		PlaceID:      placeID,
		ErrorType:    model.FailurePlaceDetails,
		ErrorMessage: err.Error(),
	}); saveErr != nil {
		zap.L().Error("failed to record details failure", zap.Error(saveErr))
	}
}
