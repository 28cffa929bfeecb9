package workflow

import (
	"sort"
	"testing"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/shopspring/decimal"
)

func tolOne() decimal.Decimal { return decimal.New(100, -2) }

func TestValidateBalances_PartitionsEveryAccountExactlyOnce(t *testing.T) {
	reported := []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "50000.00")},
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "70000.00")},
		{AccountId: 3, AccountName: "STANBIC", Amount: dec(t, "120000.00")},
	}
	submitted := []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "50000.75")}, // within tolerance
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "69000.00")},    // off by 1000
		{AccountId: 4, AccountName: "CENTENARY", Amount: dec(t, "30000.00")},
	}

	report := ValidateBalances(reported, submitted, tolOne())

	if len(report.Matched) != 1 || report.Matched[0].AccountName != "AIRTEL" {
		t.Fatalf("matched = %+v, want AIRTEL only", report.Matched)
	}
	if len(report.Mismatched) != 1 || report.Mismatched[0].AccountName != "MTN" {
		t.Fatalf("mismatched = %+v, want MTN only", report.Mismatched)
	}
	if len(report.MissingFromActual) != 1 || report.MissingFromActual[0].AccountName != "STANBIC" {
		t.Fatalf("missing_from_actual = %+v, want STANBIC only", report.MissingFromActual)
	}
	if len(report.MissingFromReport) != 1 || report.MissingFromReport[0].AccountName != "CENTENARY" {
		t.Fatalf("missing_from_report = %+v, want CENTENARY only", report.MissingFromReport)
	}

	total := len(report.Matched) + len(report.Mismatched) +
		len(report.MissingFromActual) + len(report.MissingFromReport)
	if total != 4 {
		t.Fatalf("partition covers %d accounts, union has 4", total)
	}
	if report.IsClean() {
		t.Fatal("report with mismatches and missing accounts must not be clean")
	}
}

func TestValidateBalances_DifferenceIsSignedReportedMinusSubmitted(t *testing.T) {
	reported := []models.AccountAmount{
		{AccountId: 1, AccountName: "MTN", Amount: dec(t, "100.00")},
	}
	submitted := []models.AccountAmount{
		{AccountId: 1, AccountName: "MTN", Amount: dec(t, "102.50")},
	}

	report := ValidateBalances(reported, submitted, tolOne())
	if len(report.Mismatched) != 1 {
		t.Fatalf("mismatched = %+v, want one entry", report.Mismatched)
	}
	if !report.Mismatched[0].Difference.Equal(dec(t, "-2.50")) {
		t.Fatalf("difference = %s, want -2.50 (reported - submitted)", report.Mismatched[0].Difference)
	}
}

func TestValidateBalances_ToleranceBoundary(t *testing.T) {
	cases := []struct {
		submitted string
		clean     bool
	}{
		{"100.00", true},
		{"101.00", true},  // exactly tolerance
		{"99.00", true},   // exactly tolerance, other side
		{"101.01", false}, // just over
	}
	for _, tc := range cases {
		reported := []models.AccountAmount{{AccountId: 1, AccountName: "MTN", Amount: dec(t, "100.00")}}
		submitted := []models.AccountAmount{{AccountId: 1, AccountName: "MTN", Amount: dec(t, tc.submitted)}}
		report := ValidateBalances(reported, submitted, tolOne())
		if report.IsClean() != tc.clean {
			t.Fatalf("submitted %s: clean = %v, want %v", tc.submitted, report.IsClean(), tc.clean)
		}
	}
}

func TestValidateBalances_ListsSortedByAccountName(t *testing.T) {
	reported := []models.AccountAmount{
		{AccountId: 3, AccountName: "STANBIC", Amount: dec(t, "10.00")},
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "10.00")},
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "10.00")},
	}
	submitted := []models.AccountAmount{
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "10.00")},
		{AccountId: 3, AccountName: "STANBIC", Amount: dec(t, "10.00")},
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "10.00")},
	}

	report := ValidateBalances(reported, submitted, tolOne())
	names := make([]string, 0, len(report.Matched))
	for _, m := range report.Matched {
		names = append(names, m.AccountName)
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("matched list not sorted by account name: %v", names)
	}
}

func TestValidateBalances_EmptyInputs(t *testing.T) {
	report := ValidateBalances(nil, nil, tolOne())
	if !report.IsClean() {
		t.Fatal("empty comparison must be clean")
	}
	if report.Matched == nil || report.Mismatched == nil ||
		report.MissingFromActual == nil || report.MissingFromReport == nil {
		t.Fatal("report lists must be empty slices, not nil, for stable JSON")
	}
}
