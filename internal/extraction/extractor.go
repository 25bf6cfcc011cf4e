// Package extraction pattern-matches financial and contact artifacts in
// free text. It runs independently of the isolation parser and never
// fails: text with no matches yields empty results.
package extraction

import (
	"regexp"
	"strings"

	"scamlure-lab/internal/domain/models"
)

var (
	// name@provider handles used by UPI payment apps
	upiPattern = regexp.MustCompile(`[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}\b`)

	urlPattern = regexp.MustCompile(`https?://(?:[-\w.]|%[\da-fA-F]{2})+(?:/[^\s<>"]*)?`)

	// bare 9-18 digit runs, the shape of Indian bank account numbers
	bankAccountPattern = regexp.MustCompile(`\b\d{9,18}\b`)

	phonePattern = regexp.MustCompile(`\b(?:\+?\d{1,3}[- ]?)?\(?\d{3}\)?[- ]?\d{3}[- ]?\d{4}\b`)

	// "blocked in 2 hours", "expires in 30 minutes"
	deadlinePattern = regexp.MustCompile(`(?i)\b(?:blocked|suspended|expires?|closed|deactivated)\s+(?:with)?in\s+\d+\s*(?:hours?|hrs?|minutes?|mins?|days?)\b`)
)

// urgencyKeywords are matched case-insensitively as whole words or phrases.
// Reported entries keep the casing listed here.
var urgencyKeywords = []string{
	"urgent",
	"immediately",
	"right now",
	"act now",
	"last warning",
	"final notice",
	"OTP",
	"CVV",
	"PIN",
	"password",
	"account number",
	"verify",
	"blocked",
	"suspended",
	"lottery",
	"prize",
	"gift",
	"refund",
	"KYC",
}

// Extractor scans text for high-value scam artifacts
type Extractor struct{}

// New creates an Extractor
func New() *Extractor {
	return &Extractor{}
}

// Scan returns every matched artifact keyed by entity category. Matches are
// deduplicated preserving first-seen order across all supplied texts.
func (e *Extractor) Scan(texts ...string) map[string][]string {
	found := map[string][]string{}
	add := func(category string, values ...string) {
		if len(values) == 0 {
			return
		}
		found[category] = mergeOrdered(found[category], values)
	}

	for _, text := range texts {
		if text == "" {
			continue
		}

		urls := urlPattern.FindAllString(text, -1)
		add(models.CategoryPhishingLinks, urls...)

		// Strip URLs before the UPI pass so user@host fragments inside
		// links are not misread as payment handles.
		stripped := urlPattern.ReplaceAllString(text, " ")

		add(models.CategoryUPIIDs, upiPattern.FindAllString(stripped, -1)...)
		add(models.CategoryBankAccounts, bankAccountPattern.FindAllString(stripped, -1)...)
		add(models.CategoryPhoneNumbers, phonePattern.FindAllString(stripped, -1)...)

		lower := strings.ToLower(text)
		for _, kw := range urgencyKeywords {
			if containsWord(lower, strings.ToLower(kw)) {
				add(models.CategorySuspiciousKeywords, kw)
			}
		}
		add(models.CategorySuspiciousKeywords, deadlinePattern.FindAllString(text, -1)...)
	}

	return found
}

// Enrich merges everything Scan finds in the given texts into the record.
// It runs over the raw model output even when isolation succeeded, so
// structured and pattern results are unioned.
func (e *Extractor) Enrich(record *models.IntelligenceRecord, texts ...string) {
	if record == nil {
		return
	}
	for category, values := range e.Scan(texts...) {
		record.Add(category, values...)
	}
	record.Normalize()
}

// mergeOrdered appends values not already present, keeping first-seen order
func mergeOrdered(existing, values []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		existing = append(existing, v)
	}
	return existing
}

// containsWord reports whether needle occurs in haystack on word boundaries
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
