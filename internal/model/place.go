// Package model defines the shared data types for the lead engine pipeline.
package model

import (
	"encoding/json"
	"time"
)

// PlaceRecord is one business listing as returned by the search provider.
// PlaceID is the provider's stable identity for the listing; the pipeline
// never invents one.
type PlaceRecord struct {
	PlaceID            string    `json:"place_id"`
	Name               string    `json:"name"`
	Address            string    `json:"address"`
	Phone              string    `json:"phone"`
	InternationalPhone string    `json:"international_phone"`
	Website            string    `json:"website"`
	Types              []string  `json:"types"`
	Rating             *float64  `json:"rating,omitempty"`
	UserRatingsTotal   *int      `json:"user_ratings_total,omitempty"`
	SourceQuery        string    `json:"source_query"`
	SourceLocation     string    `json:"source_location"`
	FetchedAt          time.Time `json:"fetched_at"`

	// Raw is the provider's original detail payload. Stored compressed in
	// the cache; not part of the JSON representation.
	Raw json.RawMessage `json:"-"`
}
