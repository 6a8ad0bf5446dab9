package extract

import (
	"regexp"
	"strings"
)

// socialRes maps platform name to its profile-URL pattern. Ordered slice so
// extraction output is deterministic across runs.
var socialRes = []struct {
	platform string
	re       *regexp.Regexp
}{
	{"linkedin", regexp.MustCompile(`(?i)https?://(?:www\.)?linkedin\.com/(?:company|in)/[a-zA-Z0-9_-]+/?`)},
	{"facebook", regexp.MustCompile(`(?i)https?://(?:www\.)?facebook\.com/[a-zA-Z0-9._-]+/?`)},
	{"instagram", regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/[a-zA-Z0-9._-]+/?`)},
	{"twitter", regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter|x)\.com/[a-zA-Z0-9_]+/?`)},
	{"youtube", regexp.MustCompile(`(?i)https?://(?:www\.)?youtube\.com/(?:c/|channel/|user/)?[a-zA-Z0-9_-]+/?`)},
}

// SocialLinks extracts at most one profile URL per platform from text,
// taking the first match and skipping share/intent links.
func SocialLinks(text string) map[string]string {
	results := map[string]string{}
	for _, s := range socialRes {
		m := s.re.FindString(text)
		if m == "" {
			continue
		}
		url := strings.TrimRight(m, "/")
		if strings.Contains(url, "/sharer") || strings.Contains(url, "/intent") || strings.Contains(url, "/share") {
			continue
		}
		results[s.platform] = url
	}
	return results
}
