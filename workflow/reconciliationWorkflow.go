package workflow

import (
	"context"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/models"
	"github.com/shopspring/decimal"
)

// LedgerStore is the engine's view of persisted cash-handling data: typed
// sums and per-account aggregates for one window, plus the reconciliation
// records themselves. models.GormLedgerStore is the MySQL implementation;
// tests use an in-memory fake.
type LedgerStore interface {
	SumSubmittedBalances(ctx context.Context, key models.ReconKey) (decimal.Decimal, error)
	SumCashCounts(ctx context.Context, key models.ReconKey) (decimal.Decimal, error)
	SumCommissions(ctx context.Context, key models.ReconKey) (decimal.Decimal, error)
	SumReportedGrandTotals(ctx context.Context, key models.ReconKey) (decimal.Decimal, error)
	SubmittedBalancesByAccount(ctx context.Context, key models.ReconKey) ([]models.AccountAmount, error)
	ReportedTotalsByAccount(ctx context.Context, key models.ReconKey) ([]models.AccountAmount, error)
	SourceCounts(ctx context.Context, key models.ReconKey) (models.SourceCounts, error)
	GetReconciliation(ctx context.Context, key models.ReconKey) (*models.Reconciliation, error)
	UpsertReconciliation(ctx context.Context, record *models.Reconciliation) error
}

type ReconciliationEngine struct {
	Store    LedgerStore
	Settings config.ReconciliationSettings

	now func() time.Time
}

func NewReconciliationEngine(store LedgerStore, settings config.ReconciliationSettings) *ReconciliationEngine {
	return &ReconciliationEngine{
		Store:    store,
		Settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReconciliationResult pairs the persisted (or computed) record with the
// balance report that fed its status.
type ReconciliationResult struct {
	Record        *models.Reconciliation   `json:"record"`
	BalanceReport *BalanceValidationReport `json:"balance_report"`
}

// ReconciliationSummary is a dry run: the computed figures plus the raw
// record counts behind them. Nothing is persisted.
type ReconciliationSummary struct {
	Record        *models.Reconciliation   `json:"record"`
	BalanceReport *BalanceValidationReport `json:"balance_report"`
	Counts        models.SourceCounts      `json:"counts"`
	Ready         bool                     `json:"ready"`
}

// compute runs the pure part of the reconciliation: sums, balance report,
// combination rule, tolerance verdict.
func (e *ReconciliationEngine) compute(ctx context.Context, key models.ReconKey) (*models.Reconciliation, *BalanceValidationReport, error) {
	totalFloat, err := e.Store.SumSubmittedBalances(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	totalCash, err := e.Store.SumCashCounts(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	totalCommissions, err := e.Store.SumCommissions(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	reportedRows, err := e.Store.ReportedTotalsByAccount(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	submittedRows, err := e.Store.SubmittedBalancesByAccount(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	balanceReport := ValidateBalances(reportedRows, submittedRows, e.Settings.Tolerance)

	expectedClosing := totalFloat
	if e.Settings.ExpectedIncludesCash {
		expectedClosing = expectedClosing.Add(totalCash)
	}
	if e.Settings.ExpectedIncludesCommissions {
		expectedClosing = expectedClosing.Add(totalCommissions)
	}

	var actualClosing decimal.Decimal
	if e.Settings.ActualSource == config.ActualClosingFromCash {
		actualClosing = totalCash
	} else {
		actualClosing, err = e.Store.SumReportedGrandTotals(ctx, key)
		if err != nil {
			return nil, nil, err
		}
	}

	variance := expectedClosing.Sub(actualClosing)

	status := models.CheckStatusFlagged
	if variance.Abs().LessThanOrEqual(e.Settings.Tolerance) && balanceReport.IsClean() {
		status = models.CheckStatusPassed
	}

	record := &models.Reconciliation{
		CompanyId:            key.CompanyId,
		Date:                 key.Date,
		Shift:                key.Shift,
		ReconciliationStatus: models.ReconciliationStatusCalculated,
		ApprovalStatus:       models.ApprovalStatusPending,
		TotalFloat:           totalFloat,
		TotalCash:            totalCash,
		TotalCommissions:     totalCommissions,
		ExpectedClosing:      expectedClosing,
		ActualClosing:        actualClosing,
		Variance:             variance,
		Status:               status,
	}
	return record, balanceReport, nil
}

// PerformReconciliation computes and persists the truth record for a window.
// Re-running over a non-finalized record overwrites the computed fields;
// a finalized record surfaces a ConflictError from the store untouched.
func (e *ReconciliationEngine) PerformReconciliation(ctx context.Context, key models.ReconKey, reconciledBy string) (*ReconciliationResult, error) {
	record, balanceReport, err := e.compute(ctx, key)
	if err != nil {
		return nil, err
	}

	reconciledAt := e.now()
	record.ReconciledBy = reconciledBy
	record.ReconciledAt = &reconciledAt

	if err := e.Store.UpsertReconciliation(ctx, record); err != nil {
		return nil, err
	}
	return &ReconciliationResult{Record: record, BalanceReport: balanceReport}, nil
}

// SummarizeReconciliation runs the same computation without persisting.
// Ready means both independent sides of the comparison have data.
func (e *ReconciliationEngine) SummarizeReconciliation(ctx context.Context, key models.ReconKey) (*ReconciliationSummary, error) {
	record, balanceReport, err := e.compute(ctx, key)
	if err != nil {
		return nil, err
	}
	counts, err := e.Store.SourceCounts(ctx, key)
	if err != nil {
		return nil, err
	}

	ready := counts.SubmittedBalances > 0
	if e.Settings.ActualSource == config.ActualClosingFromCash {
		ready = ready && counts.CashCounts > 0
	} else {
		ready = ready && counts.ReportedTotals > 0
	}

	return &ReconciliationSummary{
		Record:        record,
		BalanceReport: balanceReport,
		Counts:        counts,
		Ready:         ready,
	}, nil
}

// ValidateWindowBalances exposes the balance report standalone.
func (e *ReconciliationEngine) ValidateWindowBalances(ctx context.Context, key models.ReconKey) (*BalanceValidationReport, error) {
	reportedRows, err := e.Store.ReportedTotalsByAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	submittedRows, err := e.Store.SubmittedBalancesByAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	return ValidateBalances(reportedRows, submittedRows, e.Settings.Tolerance), nil
}
