package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// ActualClosingSource selects which independently-sourced total becomes
// actual_closing on a reconciliation record.
type ActualClosingSource string

const (
	// ActualClosingFromReported uses the sum of reported grand totals (Excel uploads).
	ActualClosingFromReported ActualClosingSource = "REPORTED"
	// ActualClosingFromCash uses the denomination cash-count total.
	ActualClosingFromCash ActualClosingSource = "CASH"
)

// ReconciliationSettings is the explicit combination rule for
// expected_closing vs actual_closing. The two sides must stay independently
// sourced so variance remains meaningful.
//
// Env:
// - RECON_TOLERANCE (default "1.00")
// - RECON_ACTUAL_SOURCE ("REPORTED" | "CASH", default REPORTED)
// - RECON_EXPECTED_ADD_CASH ("true" to fold cash counts into expected_closing)
// - RECON_EXPECTED_ADD_COMMISSIONS ("true" to fold commissions into expected_closing)
type ReconciliationSettings struct {
	Tolerance                   decimal.Decimal
	ActualSource                ActualClosingSource
	ExpectedIncludesCash        bool
	ExpectedIncludesCommissions bool
}

func GetReconciliationSettings() ReconciliationSettings {
	s := ReconciliationSettings{
		Tolerance:    decimal.New(100, -2), // 1.00
		ActualSource: ActualClosingFromReported,
	}
	if v := strings.TrimSpace(os.Getenv("RECON_TOLERANCE")); v != "" {
		if tol, err := decimal.NewFromString(v); err == nil && !tol.IsNegative() {
			s.Tolerance = tol
		}
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RECON_ACTUAL_SOURCE")), string(ActualClosingFromCash)) {
		s.ActualSource = ActualClosingFromCash
	}
	s.ExpectedIncludesCash = envBool("RECON_EXPECTED_ADD_CASH")
	s.ExpectedIncludesCommissions = envBool("RECON_EXPECTED_ADD_COMMISSIONS")
	return s
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
