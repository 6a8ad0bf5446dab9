package model

import "time"

// Failure error types written to the ledger.
const (
	FailureSearch        = "search"
	FailureSearchTimeout = "search_timeout"
	FailureTransport     = "transport"
	FailurePlaceDetails  = "place_details"
	FailureCrawlTimeout  = "crawl_timeout"
)

// FailureRecord is one append-only ledger entry. Entries are never mutated
// or deduplicated; a domain failing twice produces two entries.
type FailureRecord struct {
	ID           int64     `json:"id,omitempty"`
	PlaceID      string    `json:"place_id,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
}
