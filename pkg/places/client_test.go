package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSearch(t *testing.T) {
	var gotQuery, gotToken, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/textsearch/json", r.URL.Path)
		gotQuery = r.URL.Query().Get("query")
		gotToken = r.URL.Query().Get("pagetoken")
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(`{
			"results": [
				{"place_id": "ChIJa", "name": "Acme Plumbing", "formatted_address": "123 Main St, Austin, TX 78701"},
				{"place_id": "ChIJb", "name": "Best Pipes", "formatted_address": "456 Oak Ave, Austin, TX 78702"}
			],
			"next_page_token": "tok-2",
			"status": "OK"
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	page, err := c.TextSearch(context.Background(), "plumbers in Austin, TX", "")
	require.NoError(t, err)

	assert.Equal(t, "plumbers in Austin, TX", gotQuery)
	assert.Empty(t, gotToken)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "ChIJa", page.Results[0].PlaceID)
	assert.Equal(t, "tok-2", page.NextPageToken)
}

func TestTextSearch_PageTokenReplacesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("query"))
		assert.Equal(t, "tok-2", r.URL.Query().Get("pagetoken"))
		w.Write([]byte(`{"results": [], "status": "OK"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.TextSearch(context.Background(), "plumbers in Austin, TX", "tok-2")
	require.NoError(t, err)
}

func TestTextSearch_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [], "status": "ZERO_RESULTS"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	page, err := c.TextSearch(context.Background(), "nothing here", "")
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Empty(t, page.NextPageToken)
}

func TestTextSearch_OverQueryLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [], "status": "OVER_QUERY_LIMIT", "error_message": "quota exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.TextSearch(context.Background(), "plumbers", "")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimit, apiErr.Kind)
	assert.Equal(t, "OVER_QUERY_LIMIT", apiErr.Status)
	assert.True(t, apiErr.IsRetryable())
	assert.Contains(t, apiErr.Message, "quota exceeded")
}

func TestTextSearch_RequestDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [], "status": "REQUEST_DENIED", "error_message": "invalid key"}`))
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.TextSearch(context.Background(), "plumbers", "")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindAPI, apiErr.Kind)
	assert.False(t, apiErr.IsRetryable())
}

func TestTextSearch_HTTP429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.TextSearch(context.Background(), "plumbers", "")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimit, apiErr.Kind)
}

func TestTextSearch_HTTP500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.TextSearch(context.Background(), "plumbers", "")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindTransport, apiErr.Kind)
	assert.True(t, apiErr.IsRetryable())
}

func TestDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/details/json", r.URL.Path)
		assert.Equal(t, "ChIJa", r.URL.Query().Get("place_id"))
		assert.Contains(t, r.URL.Query().Get("fields"), "formatted_phone_number")
		w.Write([]byte(`{
			"result": {
				"place_id": "ChIJa",
				"name": "Acme Plumbing",
				"formatted_address": "123 Main St, Austin, TX 78701, USA",
				"formatted_phone_number": "(512) 555-0134",
				"international_phone_number": "+1 512-555-0134",
				"website": "https://acmeplumbing.com",
				"types": ["plumber"],
				"rating": 4.5,
				"user_ratings_total": 132
			},
			"status": "OK"
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	detail, err := c.Details(context.Background(), "ChIJa")
	require.NoError(t, err)

	assert.Equal(t, "Acme Plumbing", detail.Name)
	assert.Equal(t, "(512) 555-0134", detail.PhoneNumber)
	assert.Equal(t, "https://acmeplumbing.com", detail.Website)
	require.NotNil(t, detail.Rating)
	assert.Equal(t, 4.5, *detail.Rating)
	require.NotNil(t, detail.UserRatingsTotal)
	assert.Equal(t, 132, *detail.UserRatingsTotal)
	assert.Contains(t, string(detail.Raw), `"place_id"`)
}

func TestDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "NOT_FOUND"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Details(context.Background(), "ChIJgone")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindAPI, apiErr.Kind)
	assert.Equal(t, "NOT_FOUND", apiErr.Status)
}
