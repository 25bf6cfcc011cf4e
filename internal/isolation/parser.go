// Package isolation recovers a structured intelligence record from raw,
// untrusted model output. The model may wrap its JSON in prose, markdown
// fences, or emit no JSON at all; Parse is total over all inputs and
// side-effect free, returning either a schema-valid record or an explicit
// ParseFailure. It never panics.
package isolation

import (
	"encoding/json"
	"strings"

	"scamlure-lab/internal/domain/models"
)

// Parse converts raw model output into a validated IntelligenceRecord.
// Recovery is attempted in priority order, first success wins:
//
//  1. direct structural parse of the entire text
//  2. outermost balanced brace-delimited substring
//  3. one normalization pass (strip code fences, trim trailing prose)
//     followed by a single retry of step 2
//
// A successful structural parse is then schema-validated; a record whose
// scamDetected is missing or non-boolean fails with schema_violation.
func Parse(raw string) (*models.IntelligenceRecord, *models.ParseFailure) {
	// Step 1: the whole text is the object.
	if fields, ok := parseObject(raw); ok {
		return validate(fields, raw)
	}

	// Step 2: object embedded in surrounding narrative.
	if candidate, ok := outermostObject(raw); ok {
		if fields, ok := parseObject(candidate); ok {
			return validate(fields, raw)
		}
	}

	// Step 3: normalize once and retry the scan.
	normalized := normalize(raw)
	if normalized != raw {
		if candidate, ok := outermostObject(normalized); ok {
			if fields, ok := parseObject(candidate); ok {
				return validate(fields, raw)
			}
		}
	}

	return nil, &models.ParseFailure{Reason: models.FailureNoValidStructure, Raw: raw}
}

// parseObject attempts a structural parse of text as a JSON object.
func parseObject(text string) (map[string]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// validate applies the post-parse schema rules to a structurally valid
// object: scamDetected must be a JSON boolean; everything else is coerced
// to the record invariants (missing map/lists/notes become empty values).
func validate(fields map[string]json.RawMessage, raw string) (*models.IntelligenceRecord, *models.ParseFailure) {
	rawDetected, ok := fields["scamDetected"]
	if !ok {
		return nil, &models.ParseFailure{Reason: models.FailureSchemaViolation, Raw: raw}
	}
	var detected bool
	if err := json.Unmarshal(rawDetected, &detected); err != nil {
		return nil, &models.ParseFailure{Reason: models.FailureSchemaViolation, Raw: raw}
	}

	record := models.NewIntelligenceRecord()
	record.ScamDetected = detected

	if rawIntel, ok := fields["extractedIntelligence"]; ok {
		var categories map[string]json.RawMessage
		if err := json.Unmarshal(rawIntel, &categories); err == nil {
			for category, rawValues := range categories {
				record.Add(category, coerceList(rawValues)...)
			}
		}
	}

	if rawNotes, ok := fields["agentNotes"]; ok {
		var notes string
		if err := json.Unmarshal(rawNotes, &notes); err == nil {
			record.AgentNotes = notes
		}
	}

	record.Normalize()
	return record, nil
}

// coerceList extracts string values from a category field. Lists keep
// their string elements; a bare string becomes a one-element list;
// anything else contributes nothing.
func coerceList(raw json.RawMessage) []string {
	var values []string
	if err := json.Unmarshal(raw, &values); err == nil {
		return values
	}

	// Tolerate mixed-type lists by keeping only the string elements.
	var mixed []json.RawMessage
	if err := json.Unmarshal(raw, &mixed); err == nil {
		out := make([]string, 0, len(mixed))
		for _, item := range mixed {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				out = append(out, s)
			}
		}
		return out
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	return nil
}

// outermostObject scans left-to-right for the first balanced brace-delimited
// substring, tracking nesting depth and skipping braces inside JSON strings.
func outermostObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}

// normalize strips markdown code-fence markers and trims trailing
// commentary after the last closing brace.
func normalize(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	out := b.String()

	if idx := strings.LastIndexByte(out, '}'); idx >= 0 {
		out = out[:idx+1]
	}
	return out
}
