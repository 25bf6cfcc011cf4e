package models

import "fmt"

// Canonical entity categories. The set is open: categories produced by the
// model that are not listed here pass through the record untouched.
const (
	CategoryBankAccounts       = "bankAccounts"
	CategoryUPIIDs             = "upiIds"
	CategoryPhishingLinks      = "phishingLinks"
	CategoryPhoneNumbers       = "phoneNumbers"
	CategorySuspiciousKeywords = "suspiciousKeywords"
)

// KnownCategories lists the categories every record carries, present as
// empty lists even when nothing matched.
var KnownCategories = []string{
	CategoryBankAccounts,
	CategoryUPIIDs,
	CategoryPhishingLinks,
	CategoryPhoneNumbers,
	CategorySuspiciousKeywords,
}

// IntelligenceRecord is the validated output contract of an analysis cycle.
// Field names on the wire are fixed by the reporting platform.
type IntelligenceRecord struct {
	ScamDetected          bool                `json:"scamDetected"`
	ExtractedIntelligence map[string][]string `json:"extractedIntelligence"`
	AgentNotes            string              `json:"agentNotes"`
}

// NewIntelligenceRecord returns an empty, schema-complete record
func NewIntelligenceRecord() *IntelligenceRecord {
	r := &IntelligenceRecord{
		ExtractedIntelligence: make(map[string][]string, len(KnownCategories)),
	}
	r.Normalize()
	return r
}

// NewDegradedRecord builds the deliverable record used when structured
// extraction failed. The honeypot always reports something.
func NewDegradedRecord(reason string) *IntelligenceRecord {
	r := NewIntelligenceRecord()
	r.AgentNotes = fmt.Sprintf("analysis degraded: %s", reason)
	return r
}

// Normalize guarantees the record invariants: the category map is non-nil
// and every known category is present as a (possibly empty) list.
func (r *IntelligenceRecord) Normalize() {
	if r.ExtractedIntelligence == nil {
		r.ExtractedIntelligence = make(map[string][]string, len(KnownCategories))
	}
	for _, cat := range KnownCategories {
		if r.ExtractedIntelligence[cat] == nil {
			r.ExtractedIntelligence[cat] = []string{}
		}
	}
}

// Add merges values into a category with set semantics, preserving
// first-seen order. Duplicate detection is by exact string.
func (r *IntelligenceRecord) Add(category string, values ...string) {
	if r.ExtractedIntelligence == nil {
		r.Normalize()
	}
	existing := r.ExtractedIntelligence[category]
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
	r.ExtractedIntelligence[category] = existing
}

// FailureReason codes for parse failures
type FailureReason string

const (
	FailureNoValidStructure FailureReason = "no_valid_structure"
	FailureSchemaViolation  FailureReason = "schema_violation"
)

// ParseFailure is the explicit alternative to a parsed record. It is a
// value, never a panic: malformed model output is expected input.
type ParseFailure struct {
	Reason FailureReason
	Raw    string
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("model output parse failed: %s", f.Reason)
}
