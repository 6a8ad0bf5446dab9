// Package crawler fetches a handful of high-value pages from a business
// website and extracts contact signals from them.
package crawler

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/cache"
	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
)

// priorityPaths are tried in order until the page budget runs out. Contact
// and about pages carry most of the signal; legal pages catch the rest.
var priorityPaths = []string{
	"/",
	"/contact",
	"/contact-us",
	"/contactus",
	"/about",
	"/about-us",
	"/aboutus",
	"/team",
	"/our-team",
	"/staff",
	"/people",
	"/legal",
	"/privacy",
	"/privacy-policy",
	"/impressum",
	"/imprint",
}

const maxBodyBytes = 512 * 1024

// Config tunes the crawler.
type Config struct {
	// MaxPages is the page budget per domain. Default: 6.
	MaxPages int

	// DomainTimeout bounds the whole crawl of one domain. Default: 30s.
	DomainTimeout time.Duration

	// RequestTimeout bounds a single page fetch. Default: 15s.
	RequestTimeout time.Duration

	// RequestDelay is the pause between page fetches. Default: 200ms.
	RequestDelay time.Duration

	// Retry is the policy for page fetches. Zero value uses CrawlPolicy.
	Retry resilience.Policy

	// UserAgent overrides the default request User-Agent.
	UserAgent string

	// NoCache skips the per-domain cache lookup, forcing a fresh crawl.
	// The fresh result still overwrites the cache entry.
	NoCache bool
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = 6
	}
	if c.DomainTimeout <= 0 {
		c.DomainTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.RequestDelay < 0 {
		c.RequestDelay = 0
	} else if c.RequestDelay == 0 {
		c.RequestDelay = 200 * time.Millisecond
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = resilience.CrawlPolicy()
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; LeadEngineBot/1.0)"
	}
	return c
}

// Crawler crawls websites with a per-domain page budget and caches results.
type Crawler struct {
	client *http.Client
	store  cache.Store
	cfg    Config
}

// New creates a Crawler backed by the given cache.
func New(store cache.Store, cfg Config) *Crawler {
	cfg = cfg.withDefaults()
	return &Crawler{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		store: store,
		cfg:   cfg,
	}
}

// Crawl fetches up to the page budget from the website and returns the
// extracted contact signals. Results are cached per domain; a cached domain
// costs no fetches.
func (c *Crawler) Crawl(ctx context.Context, websiteURL string) (*model.CrawlResult, error) {
	domain := extract.Domain(websiteURL)
	if domain == "" {
		// not a real domain, so it never enters the cache
		return &model.CrawlResult{
			Domain:    websiteURL,
			Success:   false,
			Error:     "invalid URL",
			CrawledAt: time.Now().UTC(),
		}, nil
	}

	if !c.cfg.NoCache {
		cached, err := c.store.GetCrawlResult(ctx, domain)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	res := c.crawlDomain(ctx, websiteURL, domain)
	if err := c.store.SaveCrawlResult(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Crawler) crawlDomain(ctx context.Context, websiteURL, domain string) *model.CrawlResult {
	log := zap.L().With(zap.String("domain", domain))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DomainTimeout)
	defer cancel()

	root := siteRoot(websiteURL)

	textEmails := map[string]string{}   // address -> quality
	mailtoEmails := map[string]string{} // merged after text hits
	social := map[string]string{}
	pagesCrawled := 0

	for _, path := range priorityPaths {
		if pagesCrawled >= c.cfg.MaxPages {
			break
		}
		if pagesCrawled > 0 && c.cfg.RequestDelay > 0 {
			timer := time.NewTimer(c.cfg.RequestDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			c.recordTimeout(domain, ctx.Err())
			break
		}

		pagesCrawled++
		body, err := c.fetchPage(ctx, root+strings.TrimPrefix(path, "/"))
		if err != nil {
			if ctx.Err() != nil {
				// domain budget exhausted, nothing left to try
				c.recordTimeout(domain, ctx.Err())
				break
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.recordTimeout(domain, err)
				continue
			}
			log.Debug("page fetch failed", zap.String("path", path), zap.Error(err))
			continue
		}

		for _, hit := range extract.EmailsWithQuality(body) {
			if _, ok := textEmails[hit.Address]; !ok {
				textEmails[hit.Address] = hit.Quality
			}
		}
		for _, raw := range extract.MailtoAddresses(body) {
			addr := extract.NormalizeEmail(raw)
			if addr == "" || !extract.ValidEmail(addr) {
				continue
			}
			if _, ok := mailtoEmails[addr]; !ok {
				mailtoEmails[addr] = extract.ClassifyEmail(addr)
			}
		}
		for platform, link := range extract.SocialLinks(body) {
			if _, ok := social[platform]; !ok {
				social[platform] = link
			}
		}
	}

	// mailto hits only fill in addresses the page text did not surface
	for addr, quality := range mailtoEmails {
		if _, ok := textEmails[addr]; !ok {
			textEmails[addr] = quality
		}
	}

	emails := make([]model.EmailHit, 0, len(textEmails))
	for addr, quality := range textEmails {
		emails = append(emails, model.EmailHit{Address: addr, Quality: quality})
	}
	sort.Slice(emails, func(i, j int) bool { return emails[i].Address < emails[j].Address })

	log.Info("crawl finished",
		zap.Int("pages_crawled", pagesCrawled),
		zap.Int("emails", len(emails)),
		zap.Int("social_links", len(social)))

	return &model.CrawlResult{
		Domain:       domain,
		Emails:       emails,
		SocialLinks:  social,
		PagesCrawled: pagesCrawled,
		Success:      true,
		CrawledAt:    time.Now().UTC(),
	}
}

// fetchPage retrieves one page, retrying transient statuses. Non-HTML
// responses yield no content.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (string, error) {
	return resilience.DoVal(ctx, c.cfg.Retry, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return "", eris.Wrap(err, "crawler: create request")
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return "", eris.Wrap(err, "crawler: fetch")
		}
		defer func() { _ = resp.Body.Close() }()

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(
				eris.Errorf("crawler: status %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return "", eris.Errorf("crawler: status %d", resp.StatusCode)
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") {
			return "", eris.Errorf("crawler: skipping content type %s", contentType)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return "", eris.Wrap(err, "crawler: read body")
		}
		return string(body), nil
	})
}

func (c *Crawler) recordTimeout(domain string, cause error) {
	// Use a fresh context: the crawl context is already expired.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.SaveFailure(saveCtx, &model.FailureRecord{
		Domain:       domain,
		ErrorType:    model.FailureCrawlTimeout,
		ErrorMessage: cause.Error(),
	}); err != nil {
		zap.L().Error("failed to record crawl timeout", zap.Error(err))
	}
}

// siteRoot normalizes a website URL to "scheme://host/".
func siteRoot(websiteURL string) string {
	raw := websiteURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/") + "/"
	}
	return u.Scheme + "://" + u.Host + "/"
}
