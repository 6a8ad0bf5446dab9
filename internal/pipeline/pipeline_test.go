package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/cache"
	"github.com/sells-group/lead-engine/internal/crawler"
	"github.com/sells-group/lead-engine/internal/output"
	"github.com/sells-group/lead-engine/internal/places"
	"github.com/sells-group/lead-engine/internal/resilience"
	placesapi "github.com/sells-group/lead-engine/pkg/places"
)

type stubClient struct {
	pages   map[string]*placesapi.SearchPage
	details map[string]*placesapi.PlaceDetail
}

func (s *stubClient) TextSearch(ctx context.Context, query, pageToken string) (*placesapi.SearchPage, error) {
	key := query
	if pageToken != "" {
		key = pageToken
	}
	if page, ok := s.pages[key]; ok {
		return page, nil
	}
	return &placesapi.SearchPage{Status: "OK"}, nil
}

func (s *stubClient) Details(ctx context.Context, placeID string) (*placesapi.PlaceDetail, error) {
	if d, ok := s.details[placeID]; ok {
		return d, nil
	}
	return nil, &placesapi.APIError{Kind: placesapi.KindAPI, Status: "NOT_FOUND"}
}

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2, JitterFraction: 0}
}

func TestRun_EndToEnd(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>Contact sales@acme-austin.com or
			<a href="mailto:jane@acme-austin.com">Jane</a></html>`))
	}))
	defer site.Close()

	client := &stubClient{
		pages: map[string]*placesapi.SearchPage{
			"plumbers in Austin, TX": {
				Status: "OK",
				Results: []placesapi.PlaceSummary{
					{PlaceID: "a", Name: "Acme Plumbing"},
					{PlaceID: "b", Name: "Acme Plumbing Duplicate"},
				},
			},
		},
		details: map[string]*placesapi.PlaceDetail{
			"a": {
				PlaceID: "a", Name: "Acme Plumbing",
				FormattedAddress: "123 Main St, Austin, TX 78701, USA",
				PhoneNumber:      "(512) 555-0134",
				Website:          site.URL,
				Raw:              []byte(`{"place_id":"a"}`),
			},
			"b": {
				PlaceID: "b", Name: "Acme Plumbing Duplicate",
				PhoneNumber: "512 555 0134", // same number, different formatting
				Raw:         []byte(`{"place_id":"b"}`),
			},
		},
	}

	store, err := cache.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	searcher := places.NewSearcher(client, store, places.Config{QPS: 1000, PageDelay: -1, Retry: fastRetry()})
	crawl := crawler.New(store, crawler.Config{MaxPages: 3, RequestDelay: -1, Retry: fastRetry()})

	outDir := t.TempDir()
	writer, err := output.NewWriter(outDir, "leads")
	require.NoError(t, err)

	p := New(searcher, crawl, store, writer, Options{CrawlEnabled: true, CrawlConcurrency: 2})
	leads, summary, err := p.Run(ctx, []QueryLocation{{Query: "plumbers", Location: "Austin, TX"}})
	require.NoError(t, err)

	require.Len(t, leads, 1)
	lead := leads[0]
	assert.Equal(t, "Acme Plumbing", lead.Name)
	assert.Equal(t, "Austin", lead.City)
	assert.Equal(t, "TX", lead.State)
	assert.ElementsMatch(t, []string{"sales@acme-austin.com", "jane@acme-austin.com"}, lead.Emails)

	assert.Equal(t, 2, summary.PlacesSeen)
	assert.Equal(t, 1, summary.Leads)
	assert.Equal(t, 1, summary.DuplicatesPhone)
	assert.Equal(t, 1, summary.DomainsCrawled)
	assert.Equal(t, 2, summary.EmailsFound)
	assert.NotEmpty(t, summary.RunID)

	// export files exist
	for _, path := range []string{writer.CSVPath(), writer.JSONLPath()} {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, path)
	}
}

// failingFirstClient errors on one query and serves the other.
type failingFirstClient struct {
	stubClient
	failQuery string
}

func (f *failingFirstClient) TextSearch(ctx context.Context, query, pageToken string) (*placesapi.SearchPage, error) {
	if query == f.failQuery {
		return nil, &placesapi.APIError{Kind: placesapi.KindAPI, Status: "REQUEST_DENIED", Message: "nope"}
	}
	return f.stubClient.TextSearch(ctx, query, pageToken)
}

func TestRun_QueryFailureDegrades(t *testing.T) {
	client := &failingFirstClient{
		stubClient: stubClient{
			pages: map[string]*placesapi.SearchPage{
				"dentists in Austin, TX": {
					Status:  "OK",
					Results: []placesapi.PlaceSummary{{PlaceID: "ok", Name: "Good Dental"}},
				},
			},
			details: map[string]*placesapi.PlaceDetail{
				"ok": {PlaceID: "ok", Name: "Good Dental", Raw: []byte(`{"place_id":"ok"}`)},
			},
		},
		failQuery: "plumbers in Austin, TX",
	}

	store, err := cache.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	searcher := places.NewSearcher(client, store, places.Config{QPS: 1000, PageDelay: -1, Retry: fastRetry()})
	p := New(searcher, nil, store, nil, Options{})

	leads, summary, err := p.Run(ctx, []QueryLocation{
		{Query: "dentists", Location: "Austin, TX"},
		{Query: "plumbers", Location: "Austin, TX"},
	})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Equal(t, "Good Dental", leads[0].Name)
	assert.Equal(t, 1, summary.QueryErrors)
}

func TestRun_FirstQueryFailureAborts(t *testing.T) {
	client := &failingFirstClient{failQuery: "plumbers in Austin, TX"}

	store, err := cache.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	searcher := places.NewSearcher(client, store, places.Config{QPS: 1000, PageDelay: -1, Retry: fastRetry()})
	p := New(searcher, nil, store, nil, Options{})

	_, _, err = p.Run(ctx, []QueryLocation{
		{Query: "plumbers", Location: "Austin, TX"},
		{Query: "dentists", Location: "Austin, TX"},
	})
	require.Error(t, err)
}

func TestReadQueriesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"query,location\nplumbers,\"Austin, TX\"\ndentists,\"Dallas, TX\"\n\n"), 0o644))

	queries, err := ReadQueriesCSV(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, QueryLocation{Query: "plumbers", Location: "Austin, TX"}, queries[0])
	assert.Equal(t, QueryLocation{Query: "dentists", Location: "Dallas, TX"}, queries[1])
}

func TestReadQueriesCSV_NoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.csv")
	require.NoError(t, os.WriteFile(path, []byte("plumbers,\"Austin, TX\"\n"), 0o644))

	queries, err := ReadQueriesCSV(path)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "plumbers", queries[0].Query)
}

func TestReadQueriesCSV_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.csv")
	require.NoError(t, os.WriteFile(path, []byte("query,location\n"), 0o644))

	_, err := ReadQueriesCSV(path)
	require.Error(t, err)
}
