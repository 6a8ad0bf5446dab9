// Package places is a client for the Google Places web service
// (text search and place details).
package places

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// detailFields is the field mask requested from the details endpoint.
const detailFields = "place_id,name,formatted_address,formatted_phone_number," +
	"international_phone_number,website,types,rating,user_ratings_total"

// Client performs Places API operations.
type Client interface {
	// TextSearch runs a text search. An empty pageToken requests the first
	// page; a token from a previous page requests the next one.
	TextSearch(ctx context.Context, query string, pageToken string) (*SearchPage, error)
	// Details fetches the full record for a single place.
	Details(ctx context.Context, placeID string) (*PlaceDetail, error)
}

// SearchPage is one page of text search results.
type SearchPage struct {
	Results       []PlaceSummary `json:"results"`
	NextPageToken string         `json:"next_page_token"`
	Status        string         `json:"status"`
}

// PlaceSummary is the abbreviated place record a search page carries.
type PlaceSummary struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Types            []string `json:"types"`
}

// PlaceDetail is the full place record from the details endpoint.
type PlaceDetail struct {
	PlaceID            string   `json:"place_id"`
	Name               string   `json:"name"`
	FormattedAddress   string   `json:"formatted_address"`
	PhoneNumber        string   `json:"formatted_phone_number"`
	InternationalPhone string   `json:"international_phone_number"`
	Website            string   `json:"website"`
	Types              []string `json:"types"`
	Rating             *float64 `json:"rating"`
	UserRatingsTotal   *int     `json:"user_ratings_total"`

	// Raw is the verbatim result object as returned by the API.
	Raw json.RawMessage `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, query string, pageToken string) (*SearchPage, error) {
	params := url.Values{}
	if pageToken != "" {
		params.Set("pagetoken", pageToken)
	} else {
		params.Set("query", query)
	}

	body, err := c.get(ctx, "/textsearch/json", params)
	if err != nil {
		return nil, err
	}

	var page SearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal search response")
	}

	switch page.Status {
	case "OK":
		return &page, nil
	case "ZERO_RESULTS":
		page.Results = nil
		page.NextPageToken = ""
		return &page, nil
	default:
		return nil, statusError(page.Status, apiMessage(body))
	}
}

func (c *httpClient) Details(ctx context.Context, placeID string) (*PlaceDetail, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)

	body, err := c.get(ctx, "/details/json", params)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Status string          `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal details response")
	}
	if envelope.Status != "OK" {
		return nil, statusError(envelope.Status, apiMessage(body))
	}

	var detail PlaceDetail
	if err := json.Unmarshal(envelope.Result, &detail); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal place detail")
	}
	detail.Raw = envelope.Result
	return &detail, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{Kind: KindRateLimit, Message: "HTTP 429"}
	case resp.StatusCode >= 500:
		return nil, &APIError{Kind: KindTransport, Message: "HTTP " + resp.Status}
	default:
		return nil, &APIError{Kind: KindAPI, Message: "HTTP " + resp.Status + ": " + string(body)}
	}
}

func transportError(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Message: err.Error()}
	}
	return &APIError{Kind: KindTransport, Message: err.Error()}
}

func apiMessage(body []byte) string {
	var envelope struct {
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.ErrorMessage != "" {
		return envelope.ErrorMessage
	}
	return "request failed"
}
