package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetPlace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rating := 4.5
		total := 132
		rec := &model.PlaceRecord{
			PlaceID:            "ChIJtest123",
			Name:               "Acme Plumbing",
			Address:            "123 Main St, Austin, TX 78701, USA",
			Phone:              "(512) 555-0134",
			InternationalPhone: "+1 512-555-0134",
			Website:            "https://acmeplumbing.com",
			Types:              []string{"plumber", "point_of_interest"},
			Rating:             &rating,
			UserRatingsTotal:   &total,
			SourceQuery:        "plumbers",
			SourceLocation:     "Austin, TX",
			Raw:                []byte(`{"place_id":"ChIJtest123","name":"Acme Plumbing"}`),
		}
		require.NoError(t, s.SavePlace(ctx, rec))

		got, err := s.GetPlace(ctx, "ChIJtest123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Acme Plumbing", got.Name)
		assert.Equal(t, []string{"plumber", "point_of_interest"}, got.Types)
		require.NotNil(t, got.Rating)
		assert.Equal(t, 4.5, *got.Rating)
		require.NotNil(t, got.UserRatingsTotal)
		assert.Equal(t, 132, *got.UserRatingsTotal)
		assert.JSONEq(t, string(rec.Raw), string(got.Raw))
	})

	t.Run("GetPlaceMiss", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetPlace(context.Background(), "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("HasPlace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.HasPlace(ctx, "ChIJx")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SavePlace(ctx, &model.PlaceRecord{PlaceID: "ChIJx", Name: "X"}))

		ok, err = s.HasPlace(ctx, "ChIJx")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("SavePlaceUpsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SavePlace(ctx, &model.PlaceRecord{PlaceID: "ChIJy", Name: "Before"}))
		require.NoError(t, s.SavePlace(ctx, &model.PlaceRecord{PlaceID: "ChIJy", Name: "After"}))

		got, err := s.GetPlace(ctx, "ChIJy")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "After", got.Name)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.PlacesCached)
	})

	t.Run("ListPlacesByQuery", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, rec := range []*model.PlaceRecord{
			{PlaceID: "a", Name: "A", SourceQuery: "plumbers", SourceLocation: "Austin, TX"},
			{PlaceID: "b", Name: "B", SourceQuery: "plumbers", SourceLocation: "Austin, TX"},
			{PlaceID: "c", Name: "C", SourceQuery: "dentists", SourceLocation: "Austin, TX"},
		} {
			require.NoError(t, s.SavePlace(ctx, rec))
		}

		got, err := s.ListPlacesByQuery(ctx, "plumbers", "Austin, TX")
		require.NoError(t, err)
		assert.Len(t, got, 2)

		all, err := s.ListAllPlaces(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("UniqueWebsites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, rec := range []*model.PlaceRecord{
			{PlaceID: "a", Website: "https://acme.com"},
			{PlaceID: "b", Website: "https://acme.com"},
			{PlaceID: "c", Website: "https://other.com"},
			{PlaceID: "d", Website: ""},
		} {
			require.NoError(t, s.SavePlace(ctx, rec))
		}

		sites, err := s.UniqueWebsites(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"https://acme.com", "https://other.com"}, sites)
	})

	t.Run("SaveAndGetCrawlResult", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		res := &model.CrawlResult{
			Domain: "acme.com",
			Emails: []model.EmailHit{
				{Address: "jane@acme.com", Quality: model.QualityPersonal},
				{Address: "info@acme.com", Quality: model.QualityGeneric},
			},
			SocialLinks:  map[string]string{"linkedin": "https://linkedin.com/company/acme"},
			PagesCrawled: 3,
			Success:      true,
		}
		require.NoError(t, s.SaveCrawlResult(ctx, res))

		got, err := s.GetCrawlResult(ctx, "acme.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, res.Emails, got.Emails)
		assert.Equal(t, res.SocialLinks, got.SocialLinks)
		assert.Equal(t, 3, got.PagesCrawled)
		assert.True(t, got.Success)

		ok, err := s.HasCrawlResult(ctx, "acme.com")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("CrawlResultMiss", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		got, err := s.GetCrawlResult(ctx, "unknown.com")
		require.NoError(t, err)
		assert.Nil(t, got)

		ok, err := s.HasCrawlResult(ctx, "unknown.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FailedCrawlResultRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		res := &model.CrawlResult{
			Domain:  "broken.example.net",
			Success: false,
			Error:   "invalid URL",
		}
		require.NoError(t, s.SaveCrawlResult(ctx, res))

		got, err := s.GetCrawlResult(ctx, "broken.example.net")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Success)
		assert.Equal(t, "invalid URL", got.Error)
		assert.Empty(t, got.Emails)
	})

	t.Run("SearchProgressRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		got, err := s.GetSearchProgress(ctx, "plumbers", "Austin, TX")
		require.NoError(t, err)
		assert.Nil(t, got)

		p := &model.SearchProgress{
			Query:          "plumbers",
			Location:       "Austin, TX",
			NextPageToken:  "tok-2",
			ResultsFetched: 20,
		}
		require.NoError(t, s.SaveSearchProgress(ctx, p))

		got, err = s.GetSearchProgress(ctx, "plumbers", "Austin, TX")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, QueryHash("plumbers", "Austin, TX"), got.QueryHash)
		assert.Equal(t, "tok-2", got.NextPageToken)
		assert.Equal(t, 20, got.ResultsFetched)
		assert.False(t, got.Completed)

		p.NextPageToken = ""
		p.ResultsFetched = 38
		p.Completed = true
		require.NoError(t, s.SaveSearchProgress(ctx, p))

		got, err = s.GetSearchProgress(ctx, "plumbers", "Austin, TX")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Completed)
		assert.Equal(t, 38, got.ResultsFetched)
	})

	t.Run("SearchProgressCaseInsensitiveKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveSearchProgress(ctx, &model.SearchProgress{
			Query: "Plumbers", Location: "Austin, TX", ResultsFetched: 5,
		}))

		got, err := s.GetSearchProgress(ctx, "plumbers", "austin, tx")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 5, got.ResultsFetched)
	})

	t.Run("Failures", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Now().UTC().Add(-time.Hour)
		for i, f := range []*model.FailureRecord{
			{PlaceID: "ChIJa", ErrorType: model.FailureSearch, ErrorMessage: "OVER_QUERY_LIMIT"},
			{Domain: "slow.example.com", ErrorType: model.FailureCrawlTimeout, ErrorMessage: "deadline exceeded"},
			{Domain: "down.example.com", ErrorType: model.FailureCrawlTimeout, ErrorMessage: "deadline exceeded"},
		} {
			f.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.SaveFailure(ctx, f))
		}

		all, err := s.ListFailures(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		timeouts, err := s.ListFailures(ctx, model.FailureCrawlTimeout)
		require.NoError(t, err)
		require.Len(t, timeouts, 2)
		// newest first
		assert.Equal(t, "down.example.com", timeouts[0].Domain)

		n, err := s.ClearFailures(ctx, model.FailureCrawlTimeout)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		remaining, err := s.ListFailures(ctx, "")
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, model.FailureSearch, remaining[0].ErrorType)
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SavePlace(ctx, &model.PlaceRecord{PlaceID: "a"}))
		require.NoError(t, s.SaveCrawlResult(ctx, &model.CrawlResult{Domain: "acme.com", Success: true}))
		require.NoError(t, s.SaveFailure(ctx, &model.FailureRecord{ErrorType: model.FailureTransport}))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.PlacesCached)
		assert.Equal(t, 1, stats.DomainsCrawled)
		assert.Equal(t, 1, stats.Failures)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLiteStore_CorruptPayloadIsMiss(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.SavePlace(ctx, &model.PlaceRecord{
		PlaceID: "ChIJcorrupt", Name: "Corrupt", Raw: []byte(`{"ok":true}`),
	}))
	require.NoError(t, s.SavePlace(ctx, &model.PlaceRecord{
		PlaceID: "ChIJgood", Name: "Good",
	}))

	// not valid zlib
	_, err = s.db.ExecContext(ctx,
		`UPDATE places SET raw_response = ? WHERE place_id = ?`,
		[]byte("garbage"), "ChIJcorrupt",
	)
	require.NoError(t, err)

	got, err := s.GetPlace(ctx, "ChIJcorrupt")
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := s.ListAllPlaces(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ChIJgood", all[0].PlaceID)
}

func TestSQLiteStore_CorruptCrawlJSONIsMiss(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crawl_results (domain, emails, social_links, pages_crawled, success, error, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"corrupt.com", "{not json", "{}", 1, 1, "", time.Now().UTC(),
	)
	require.NoError(t, err)

	got, err := s.GetCrawlResult(ctx, "corrupt.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}
