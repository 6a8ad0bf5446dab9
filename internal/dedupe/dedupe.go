// Package dedupe collapses place records into canonical leads using a
// three-key identity: place id, then normalized phone, then website domain.
package dedupe

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/model"
)

// Stats counts dedupe activity per identity rule.
type Stats struct {
	TotalInput        int
	DuplicatesPlaceID int
	DuplicatesPhone   int
	DuplicatesDomain  int
}

// Kept returns how many input records survived as leads.
func (s Stats) Kept() int {
	return s.TotalInput - s.DuplicatesPlaceID - s.DuplicatesPhone - s.DuplicatesDomain
}

// Deduplicator tracks identity keys across Add calls. First record with a
// given key wins; later records sharing any key are dropped.
type Deduplicator struct {
	placeIDs      map[string]struct{}
	phoneToPlace  map[string]string
	domainToPlace map[string]string

	stats Stats
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		placeIDs:      map[string]struct{}{},
		phoneToPlace:  map[string]string{},
		domainToPlace: map[string]string{},
	}
}

// Stats returns the counters accumulated so far.
func (d *Deduplicator) Stats() Stats {
	return d.stats
}

// Add checks the record against the identity indexes. It returns the new
// Lead, or nil when the record duplicates an earlier one.
func (d *Deduplicator) Add(rec *model.PlaceRecord) *model.Lead {
	d.stats.TotalInput++

	normPhone := ""
	if rec.Phone != "" {
		normPhone = extract.NormalizePhone(rec.Phone)
	}
	domain := ""
	if rec.Website != "" {
		domain = extract.Domain(rec.Website)
	}

	if reason := d.duplicateReason(rec.PlaceID, normPhone, domain); reason != "" {
		switch reason {
		case "place_id":
			d.stats.DuplicatesPlaceID++
		case "phone":
			d.stats.DuplicatesPhone++
		case "domain":
			d.stats.DuplicatesDomain++
		}
		zap.L().Debug("duplicate lead dropped",
			zap.String("name", rec.Name),
			zap.String("place_id", rec.PlaceID),
			zap.String("reason", reason))
		return nil
	}

	d.placeIDs[rec.PlaceID] = struct{}{}
	if normPhone != "" {
		d.phoneToPlace[normPhone] = rec.PlaceID
	}
	if domain != "" {
		d.domainToPlace[domain] = rec.PlaceID
	}

	return LeadFromPlace(rec)
}

// Dedupe runs Add over a batch, keeping input order.
func (d *Deduplicator) Dedupe(records []model.PlaceRecord) []*model.Lead {
	leads := make([]*model.Lead, 0, len(records))
	for i := range records {
		if lead := d.Add(&records[i]); lead != nil {
			leads = append(leads, lead)
		}
	}
	return leads
}

func (d *Deduplicator) duplicateReason(placeID, normPhone, domain string) string {
	if _, ok := d.placeIDs[placeID]; ok {
		return "place_id"
	}
	if normPhone != "" {
		if _, ok := d.phoneToPlace[normPhone]; ok {
			return "phone"
		}
	}
	if domain != "" {
		if _, ok := d.domainToPlace[domain]; ok {
			return "domain"
		}
	}
	return ""
}

// LeadFromPlace builds a Lead from a place record, decomposing the address
// and deriving the website domain.
func LeadFromPlace(rec *model.PlaceRecord) *model.Lead {
	lead := model.NewLead(rec.PlaceID)
	lead.Name = rec.Name
	lead.Address = rec.Address
	lead.Phone = rec.Phone
	lead.InternationalPhone = rec.InternationalPhone
	lead.Website = rec.Website
	lead.Rating = rec.Rating
	lead.UserRatingsTotal = rec.UserRatingsTotal
	lead.SourceQuery = rec.SourceQuery
	lead.SourceLocation = rec.SourceLocation
	lead.FetchedAt = rec.FetchedAt
	if len(rec.Types) > 0 {
		lead.Types = append(lead.Types, rec.Types...)
	}

	lead.City, lead.State, lead.PostalCode, lead.Country = ParseAddress(rec.Address)
	if rec.Website != "" {
		lead.Domain = extract.Domain(rec.Website)
	}
	return lead
}

var stateZipRe = regexp.MustCompile(`^([A-Za-z]{2})\s+(\d{5}(?:-\d{4})?)`)

// ParseAddress decomposes a formatted address into city, state, postal code,
// and country. US-focused: "Street, City, State ZIP, Country". A two-part
// address is treated as "City, Country".
func ParseAddress(address string) (city, state, postalCode, country string) {
	if address == "" {
		return "", "", "", ""
	}

	parts := strings.Split(address, ",")
	switch {
	case len(parts) >= 3:
		city = strings.TrimSpace(parts[len(parts)-3])
		stateZip := strings.TrimSpace(parts[len(parts)-2])
		if m := stateZipRe.FindStringSubmatch(stateZip); m != nil {
			state = strings.ToUpper(m[1])
			postalCode = m[2]
		} else {
			state = stateZip
		}
		country = strings.TrimSpace(parts[len(parts)-1])
	case len(parts) == 2:
		city = strings.TrimSpace(parts[0])
		country = strings.TrimSpace(parts[1])
	}
	return city, state, postalCode, country
}

// MergeEmails appends crawled email hits onto the lead, keeping existing
// entries and recording quality for the new ones. Social links are
// intentionally not merged; they stay on the crawl result.
func MergeEmails(lead *model.Lead, hits []model.EmailHit) {
	for _, hit := range hits {
		lead.AddEmail(hit.Address, hit.Quality)
	}
}
