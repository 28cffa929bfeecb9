package workflow

import (
	"sort"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
)

type BalanceMatch struct {
	AccountId   int             `json:"account_id"`
	AccountName string          `json:"account_name"`
	Reported    decimal.Decimal `json:"reported"`
	Submitted   decimal.Decimal `json:"submitted"`
}

type BalanceMismatch struct {
	AccountId   int             `json:"account_id"`
	AccountName string          `json:"account_name"`
	Reported    decimal.Decimal `json:"reported"`
	Submitted   decimal.Decimal `json:"submitted"`
	Difference  decimal.Decimal `json:"difference"` // reported - submitted, signed
}

// BalanceValidationReport partitions the union of reported and submitted
// accounts: every account lands in exactly one list.
type BalanceValidationReport struct {
	Matched           []BalanceMatch         `json:"matched"`
	Mismatched        []BalanceMismatch      `json:"mismatched"`
	MissingFromActual []models.AccountAmount `json:"missing_from_actual"` // only in reported rows
	MissingFromReport []models.AccountAmount `json:"missing_from_report"` // only in submitted balances
	Tolerance         decimal.Decimal        `json:"tolerance"`
}

// IsClean reports whether every account matched within tolerance.
func (r *BalanceValidationReport) IsClean() bool {
	return len(r.Mismatched) == 0 && len(r.MissingFromActual) == 0 && len(r.MissingFromReport) == 0
}

// ValidateBalances compares reported grand totals against submitted balance
// amounts account by account. Read-only; both inputs are aggregated
// per-account figures for one (company, date, shift) window.
func ValidateBalances(reported, submitted []models.AccountAmount, tolerance decimal.Decimal) *BalanceValidationReport {
	report := &BalanceValidationReport{
		Matched:           []BalanceMatch{},
		Mismatched:        []BalanceMismatch{},
		MissingFromActual: []models.AccountAmount{},
		MissingFromReport: []models.AccountAmount{},
		Tolerance:         tolerance,
	}

	reportedByAccount := make(map[int]models.AccountAmount, len(reported))
	for _, row := range reported {
		reportedByAccount[row.AccountId] = row
	}
	submittedByAccount := make(map[int]models.AccountAmount, len(submitted))
	for _, row := range submitted {
		submittedByAccount[row.AccountId] = row
	}

	for _, rep := range reported {
		sub, ok := submittedByAccount[rep.AccountId]
		if !ok {
			report.MissingFromActual = append(report.MissingFromActual, rep)
			continue
		}
		if utils.WithinTolerance(rep.Amount, sub.Amount, tolerance) {
			report.Matched = append(report.Matched, BalanceMatch{
				AccountId:   rep.AccountId,
				AccountName: rep.AccountName,
				Reported:    rep.Amount,
				Submitted:   sub.Amount,
			})
		} else {
			report.Mismatched = append(report.Mismatched, BalanceMismatch{
				AccountId:   rep.AccountId,
				AccountName: rep.AccountName,
				Reported:    rep.Amount,
				Submitted:   sub.Amount,
				Difference:  rep.Amount.Sub(sub.Amount),
			})
		}
	}

	for _, sub := range submitted {
		if _, ok := reportedByAccount[sub.AccountId]; !ok {
			report.MissingFromReport = append(report.MissingFromReport, sub)
		}
	}

	// Sort by account name so identical inputs always produce an identical
	// report.
	sort.Slice(report.Matched, func(i, j int) bool {
		return report.Matched[i].AccountName < report.Matched[j].AccountName
	})
	sort.Slice(report.Mismatched, func(i, j int) bool {
		return report.Mismatched[i].AccountName < report.Mismatched[j].AccountName
	})
	sort.Slice(report.MissingFromActual, func(i, j int) bool {
		return report.MissingFromActual[i].AccountName < report.MissingFromActual[j].AccountName
	})
	sort.Slice(report.MissingFromReport, func(i, j int) bool {
		return report.MissingFromReport[i].AccountName < report.MissingFromReport[j].AccountName
	})

	return report
}
