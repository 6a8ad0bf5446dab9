package model

import "time"

// Email quality classifications.
const (
	QualityPersonal = "personal"
	QualityGeneric  = "generic"
	QualityUnknown  = "unknown"
)

// EmailHit is one extracted email address with its quality classification.
type EmailHit struct {
	Address string `json:"address"`
	Quality string `json:"quality"`
}

// CrawlResult is the outcome of crawling one website domain. A domain is
// crawled at most once per run; re-crawling replaces the cached entry.
type CrawlResult struct {
	Domain       string            `json:"domain"`
	Emails       []EmailHit        `json:"emails"`
	SocialLinks  map[string]string `json:"social_links"`
	PagesCrawled int               `json:"pages_crawled"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	CrawledAt    time.Time         `json:"crawled_at"`
}

// EmailAddresses returns just the addresses, in crawl-discovery order.
func (c *CrawlResult) EmailAddresses() []string {
	out := make([]string, 0, len(c.Emails))
	for _, e := range c.Emails {
		out = append(out, e.Address)
	}
	return out
}
