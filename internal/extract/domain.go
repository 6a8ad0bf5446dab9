package extract

import (
	"net/url"
	"strings"
)

// Domain canonicalizes a URL to its bare domain: lowercase host, "www."
// prefix and port stripped. Schemeless inputs are parsed as https. Empty or
// unparseable input yields "" rather than an error.
func Domain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	domain := strings.ToLower(u.Hostname())
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}
