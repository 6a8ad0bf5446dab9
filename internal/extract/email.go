// Package extract provides regex-based extraction and normalization:
// emails with quality classification, phone numbers, social links, and
// website domains. Pure functions, no I/O.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/lead-engine/internal/model"
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+`)

	mailtoRe = regexp.MustCompile(`(?i)mailto:([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)

	trailingDigitsRe = regexp.MustCompile(`\d+$`)
)

// genericPrefixes are local parts that indicate a role or department
// mailbox rather than an individual.
var genericPrefixes = map[string]struct{}{
	"info": {}, "contact": {}, "hello": {}, "hi": {}, "support": {},
	"help": {}, "admin": {}, "sales": {}, "marketing": {}, "billing": {},
	"accounts": {}, "service": {}, "services": {}, "team": {}, "office": {},
	"mail": {}, "email": {}, "enquiry": {}, "enquiries": {}, "inquiry": {},
	"inquiries": {}, "general": {}, "feedback": {}, "webmaster": {},
	"postmaster": {}, "hostmaster": {}, "abuse": {}, "noreply": {},
	"no-reply": {}, "donotreply": {}, "do-not-reply": {}, "newsletter": {},
	"subscribe": {}, "unsubscribe": {}, "privacy": {}, "legal": {},
	"compliance": {}, "hr": {}, "jobs": {}, "careers": {},
	"recruitment": {}, "press": {}, "media": {}, "pr": {},
}

// rolePatterns catch role mailboxes with decorations, e.g. "sales-team" or
// "uk.support".
var rolePatterns = []string{"sales", "support", "info", "admin", "contact"}

// invalidTLDs are file extensions that regex matching mistakes for TLDs
// (asset URLs like logo@2x.png).
var invalidTLDs = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {},
	"css": {}, "js": {}, "json": {}, "xml": {},
}

// invalidDomains are placeholder and infrastructure domains that never hold
// a reachable contact address.
var invalidDomains = map[string]struct{}{
	"example.com": {}, "example.org": {}, "test.com": {}, "domain.com": {},
	"email.com": {}, "yoursite.com": {}, "yourdomain.com": {},
	"company.com": {}, "website.com": {}, "sentry.io": {},
	"wixpress.com": {}, "googleapis.com": {},
}

var placeholderRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)your.*email`),
	regexp.MustCompile(`(?i)email.*here`),
	regexp.MustCompile(`(?i)name@`),
	regexp.MustCompile(`(?i)@domain`),
	regexp.MustCompile(`(?i)xxx`),
	regexp.MustCompile(`(?i)test@`),
	regexp.MustCompile(`(?i)@test`),
	regexp.MustCompile(`(?i)sample@`),
	regexp.MustCompile(`(?i)@sample`),
}

// Emails extracts all valid email addresses from raw text or HTML.
// Addresses from mailto: links and plain text are pooled, normalized,
// deduplicated, and returned lexicographically sorted.
func Emails(text string) []string {
	seen := map[string]struct{}{}

	for _, m := range mailtoRe.FindAllStringSubmatch(text, -1) {
		if e := NormalizeEmail(m[1]); e != "" && ValidEmail(e) {
			seen[e] = struct{}{}
		}
	}
	for _, m := range emailRe.FindAllString(text, -1) {
		if e := NormalizeEmail(m); e != "" && ValidEmail(e) {
			seen[e] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// EmailsWithQuality extracts valid emails and classifies each one.
func EmailsWithQuality(text string) []model.EmailHit {
	emails := Emails(text)
	out := make([]model.EmailHit, 0, len(emails))
	for _, e := range emails {
		out = append(out, model.EmailHit{Address: e, Quality: ClassifyEmail(e)})
	}
	return out
}

// MailtoAddresses returns the raw addresses of all mailto: links in text.
func MailtoAddresses(text string) []string {
	var out []string
	for _, m := range mailtoRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// NormalizeEmail lowercases an address and strips punctuation artifacts
// that regex matching picks up from surrounding markup. Returns "" when
// nothing email-shaped remains.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	email = strings.TrimRight(email, ".,;)]>")
	email = strings.TrimLeft(email, "([<")
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

// ValidEmail reports whether a normalized address passes the structural
// checks and denylists.
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	local, domain := email[:at], email[at+1:]

	if len(local) > 64 {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}

	tld := domain[strings.LastIndex(domain, ".")+1:]
	if _, bad := invalidTLDs[tld]; bad {
		return false
	}
	if len(tld) < 2 || len(tld) > 10 {
		return false
	}
	if _, bad := invalidDomains[domain]; bad {
		return false
	}

	for _, re := range placeholderRes {
		if re.MatchString(email) {
			return false
		}
	}
	return true
}

// ClassifyEmail labels an address "generic" (role/department mailbox) or
// "personal". Trailing digits are ignored so info2@ still reads as info@.
func ClassifyEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return model.QualityGeneric
	}
	local := strings.ToLower(email[:at])

	base := trailingDigitsRe.ReplaceAllString(local, "")
	if _, ok := genericPrefixes[base]; ok {
		return model.QualityGeneric
	}
	for _, role := range rolePatterns {
		if strings.HasPrefix(local, role) || strings.HasSuffix(local, role) {
			return model.QualityGeneric
		}
	}
	return model.QualityPersonal
}
