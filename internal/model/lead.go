package model

import "time"

// Lead is the canonical deduplicated business entity. Created by the
// deduplicator from one or more PlaceRecords sharing an identity key;
// mutated only to append emails during the merge step.
type Lead struct {
	PlaceID            string            `json:"place_id"`
	Name               string            `json:"name"`
	Address            string            `json:"address"`
	City               string            `json:"city"`
	State              string            `json:"state"`
	PostalCode         string            `json:"postal_code"`
	Country            string            `json:"country"`
	Phone              string            `json:"phone"`
	InternationalPhone string            `json:"international_phone"`
	Website            string            `json:"website"`
	Domain             string            `json:"domain"`
	Emails             []string          `json:"emails"`
	EmailQuality       map[string]string `json:"email_quality"`
	Types              []string          `json:"types"`
	Rating             *float64          `json:"rating,omitempty"`
	UserRatingsTotal   *int              `json:"user_ratings_total,omitempty"`
	SourceQuery        string            `json:"source_query"`
	SourceLocation     string            `json:"source_location"`
	FetchedAt          time.Time         `json:"fetched_at"`
}

// NewLead returns a Lead with all containers initialized, so append and map
// assignment are always safe.
func NewLead(placeID string) *Lead {
	return &Lead{
		PlaceID:      placeID,
		Emails:       []string{},
		EmailQuality: map[string]string{},
		Types:        []string{},
	}
}

// AddEmail appends an email if not already present and records its quality.
func (l *Lead) AddEmail(address, quality string) {
	for _, e := range l.Emails {
		if e == address {
			return
		}
	}
	l.Emails = append(l.Emails, address)
	if quality != "" {
		l.EmailQuality[address] = quality
	}
}

// PrimaryEmail returns the first personal email if any, otherwise the first
// email, otherwise empty.
func (l *Lead) PrimaryEmail() string {
	for _, e := range l.Emails {
		if l.EmailQuality[e] == QualityPersonal {
			return e
		}
	}
	if len(l.Emails) > 0 {
		return l.Emails[0]
	}
	return ""
}
