package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamlure-lab/internal/domain/models"
)

func TestScanUPIAndUrgency(t *testing.T) {
	e := New()

	found := e.Scan("pay to ramesh@upi now, OTP blocked in 2 hours")

	assert.Contains(t, found[models.CategoryUPIIDs], "ramesh@upi")
	assert.Contains(t, found[models.CategorySuspiciousKeywords], "OTP")
	assert.Contains(t, found[models.CategorySuspiciousKeywords], "blocked")
	assert.Contains(t, found[models.CategorySuspiciousKeywords], "blocked in 2 hours")
}

func TestScanNoDuplicates(t *testing.T) {
	e := New()

	found := e.Scan(
		"send OTP now, the OTP is urgent",
		"again: OTP urgent, pay ramesh@upi or ramesh@upi loses money",
	)

	assert.Equal(t, 1, count(found[models.CategorySuspiciousKeywords], "OTP"))
	assert.Equal(t, 1, count(found[models.CategorySuspiciousKeywords], "urgent"))
	assert.Equal(t, []string{"ramesh@upi"}, found[models.CategoryUPIIDs])
}

func TestScanBankAccountsAndLinks(t *testing.T) {
	e := New()

	found := e.Scan("transfer to account 123456789012 via http://sbi-verify.xyz/unlock?id=9")

	assert.Contains(t, found[models.CategoryBankAccounts], "123456789012")
	assert.Contains(t, found[models.CategoryPhishingLinks], "http://sbi-verify.xyz/unlock?id=9")
}

func TestScanURLFragmentsNotReportedAsUPI(t *testing.T) {
	e := New()

	found := e.Scan("click https://pay.example.com/login@secure now")

	assert.Empty(t, found[models.CategoryUPIIDs])
	require.Len(t, found[models.CategoryPhishingLinks], 1)
}

func TestScanPhoneNumbers(t *testing.T) {
	e := New()

	found := e.Scan("call +91 987 654 3210 before your card is suspended")

	assert.NotEmpty(t, found[models.CategoryPhoneNumbers])
	assert.Contains(t, found[models.CategorySuspiciousKeywords], "suspended")
}

func TestScanEmptyTextIsNotAnError(t *testing.T) {
	e := New()

	found := e.Scan("", "nothing suspicious here, just lunch plans")

	assert.Empty(t, found[models.CategoryUPIIDs])
	assert.Empty(t, found[models.CategoryBankAccounts])
	assert.Empty(t, found[models.CategoryPhishingLinks])
}

func TestEnrichMergesIntoRecord(t *testing.T) {
	e := New()
	record := models.NewIntelligenceRecord()
	record.Add(models.CategoryUPIIDs, "existing@ybl")

	e.Enrich(record, "also pay ramesh@upi, urgent")

	assert.Equal(t, []string{"existing@ybl", "ramesh@upi"}, record.ExtractedIntelligence[models.CategoryUPIIDs])
	assert.Contains(t, record.ExtractedIntelligence[models.CategorySuspiciousKeywords], "urgent")
	for _, cat := range models.KnownCategories {
		require.NotNil(t, record.ExtractedIntelligence[cat])
	}
}

func TestEnrichNilRecordIsNoop(t *testing.T) {
	New().Enrich(nil, "urgent OTP")
}

func count(values []string, target string) int {
	n := 0
	for _, v := range values {
		if v == target {
			n++
		}
	}
	return n
}
