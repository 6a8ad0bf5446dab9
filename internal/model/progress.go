package model

import "time"

// SearchProgress is the resumability checkpoint for one (query, location)
// pair. NextPageToken is the provider's continuation cursor; empty means the
// provider has no further pages.
type SearchProgress struct {
	QueryHash      string    `json:"query_hash"`
	Query          string    `json:"query"`
	Location       string    `json:"location"`
	NextPageToken  string    `json:"next_page_token"`
	ResultsFetched int       `json:"results_fetched"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updated_at"`
}
