package extract

import (
	"fmt"
	"regexp"
	"strings"
)

var nonPhoneRe = regexp.MustCompile(`[^\d+]`)

// NormalizePhone reduces a raw phone string to digits with at most one
// leading "+". A "+" anywhere in the input marks the number international;
// all occurrences collapse to a single leading one. Idempotent.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	normalized := nonPhoneRe.ReplaceAllString(phone, "")
	if strings.Contains(normalized, "+") {
		normalized = "+" + strings.ReplaceAll(normalized, "+", "")
	}
	return normalized
}

// ValidPhone reports whether a normalized phone has 7-15 digits and is not
// a single repeated digit.
func ValidPhone(phone string) bool {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return false
	}
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return true
		}
	}
	return false
}

// FormatPhoneDisplay renders US/Canada numbers as "(AAA) BBB-CCCC" (with a
// "+1 " prefix for 11-digit numbers starting with 1). Other international
// numbers pass through normalized with their "+"; anything else returns the
// original input unchanged.
func FormatPhoneDisplay(phone string) string {
	normalized := NormalizePhone(phone)
	digits := strings.TrimPrefix(normalized, "+")

	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	case len(digits) == 11 && digits[0] == '1':
		return fmt.Sprintf("+1 (%s) %s-%s", digits[1:4], digits[4:7], digits[7:])
	}

	if strings.HasPrefix(normalized, "+") {
		return normalized
	}
	return phone
}
