package models

import (
	"context"
	"errors"
	"time"

	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconKey identifies one reconciliation window. One truth record per key.
type ReconKey struct {
	CompanyId int
	Date      time.Time
	Shift     ShiftType
}

func (k ReconKey) String() string {
	return k.Date.Format("2006-01-02") + " " + string(k.Shift)
}

// AccountAmount is an aggregated per-account figure inside one window.
type AccountAmount struct {
	AccountId   int             `json:"account_id"`
	AccountName string          `json:"account_name"`
	Amount      decimal.Decimal `json:"amount"`
}

// SourceCounts reports how many raw records exist per family for a window.
type SourceCounts struct {
	SubmittedBalances int64 `json:"submitted_balances"`
	Commissions       int64 `json:"commissions"`
	CashCounts        int64 `json:"cash_counts"`
	ReportedTotals    int64 `json:"reported_totals"`
}

type Reconciliation struct {
	ID                   int                  `gorm:"primary_key" json:"id"`
	CompanyId            int                  `gorm:"not null;uniqueIndex:uix_recon_company_date_shift" json:"company_id"`
	Date                 time.Time            `gorm:"not null;uniqueIndex:uix_recon_company_date_shift" json:"date"`
	Shift                ShiftType            `gorm:"type:enum('AM','PM');not null;uniqueIndex:uix_recon_company_date_shift" json:"shift"`
	ReconciliationStatus ReconciliationStatus `gorm:"type:enum('DRAFT','CALCULATED','FINALIZED');not null;default:DRAFT" json:"reconciliation_status"`
	TotalFloat           decimal.Decimal      `gorm:"type:decimal(18,2);default:0" json:"total_float"`
	TotalCash            decimal.Decimal      `gorm:"type:decimal(18,2);default:0" json:"total_cash"`
	TotalCommissions     decimal.Decimal      `gorm:"type:decimal(18,2);default:0" json:"total_commissions"`
	ExpectedClosing      decimal.Decimal      `gorm:"type:decimal(18,2);default:0" json:"expected_closing"`
	ActualClosing        decimal.Decimal      `gorm:"type:decimal(18,2);default:0" json:"actual_closing"`
	Variance             decimal.Decimal      `gorm:"type:decimal(18,2);default:0" json:"variance"`
	Status               CheckStatus          `gorm:"type:enum('PASSED','FAILED','FLAGGED');not null;default:FLAGGED" json:"status"`
	ApprovalStatus       ApprovalStatus       `gorm:"type:enum('PENDING','APPROVED','REJECTED');not null;default:PENDING" json:"approval_status"`
	ReconciledBy         string               `gorm:"size:100" json:"reconciled_by"`
	ReconciledAt         *time.Time           `json:"reconciled_at"`
	ApprovedBy           string               `gorm:"size:100" json:"approved_by"`
	ApprovedAt           *time.Time           `json:"approved_at"`
	RejectedBy           string               `gorm:"size:100" json:"rejected_by"`
	RejectedAt           *time.Time           `json:"rejected_at"`
	RejectionReason      string               `gorm:"size:512" json:"rejection_reason"`
	IsFinalized          bool                 `gorm:"not null;default:false" json:"is_finalized"`
	Notes                string               `gorm:"type:text" json:"notes"`
	CreatedAt            time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// GormLedgerStore is the MySQL-backed view of the four record families plus
// the reconciliation records themselves. The reconciliation engine depends
// only on its method set, so tests swap in an in-memory fake.
type GormLedgerStore struct {
	DB *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{DB: db}
}

func (s *GormLedgerStore) sum(ctx context.Context, model interface{}, key ReconKey, column string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := s.DB.WithContext(ctx).Model(model).
		Select("COALESCE(SUM("+column+"), 0) AS total").
		Where("company_id = ? AND date = ? AND shift = ?", key.CompanyId, key.Date, key.Shift).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (s *GormLedgerStore) SumSubmittedBalances(ctx context.Context, key ReconKey) (decimal.Decimal, error) {
	return s.sum(ctx, &SubmittedBalance{}, key, "amount")
}

func (s *GormLedgerStore) SumCashCounts(ctx context.Context, key ReconKey) (decimal.Decimal, error) {
	return s.sum(ctx, &CashCount{}, key, "amount")
}

func (s *GormLedgerStore) SumCommissions(ctx context.Context, key ReconKey) (decimal.Decimal, error) {
	return s.sum(ctx, &Commission{}, key, "amount")
}

func (s *GormLedgerStore) SumReportedGrandTotals(ctx context.Context, key ReconKey) (decimal.Decimal, error) {
	return s.sum(ctx, &ReportedTotal{}, key, "reported_grand_total")
}

func (s *GormLedgerStore) SubmittedBalancesByAccount(ctx context.Context, key ReconKey) ([]AccountAmount, error) {
	var rows []AccountAmount
	err := s.DB.WithContext(ctx).Model(&SubmittedBalance{}).
		Select("submitted_balances.account_id, accounts.name AS account_name, SUM(submitted_balances.amount) AS amount").
		Joins("JOIN accounts ON accounts.id = submitted_balances.account_id").
		Where("submitted_balances.company_id = ? AND submitted_balances.date = ? AND submitted_balances.shift = ?",
			key.CompanyId, key.Date, key.Shift).
		Group("submitted_balances.account_id, accounts.name").
		Order("accounts.name asc").
		Scan(&rows).Error
	return rows, err
}

func (s *GormLedgerStore) ReportedTotalsByAccount(ctx context.Context, key ReconKey) ([]AccountAmount, error) {
	var rows []AccountAmount
	err := s.DB.WithContext(ctx).Model(&ReportedTotal{}).
		Select("reported_totals.account_id, accounts.name AS account_name, SUM(reported_totals.reported_grand_total) AS amount").
		Joins("JOIN accounts ON accounts.id = reported_totals.account_id").
		Where("reported_totals.company_id = ? AND reported_totals.date = ? AND reported_totals.shift = ?",
			key.CompanyId, key.Date, key.Shift).
		Group("reported_totals.account_id, accounts.name").
		Order("accounts.name asc").
		Scan(&rows).Error
	return rows, err
}

func (s *GormLedgerStore) SourceCounts(ctx context.Context, key ReconKey) (SourceCounts, error) {
	var counts SourceCounts
	where := "company_id = ? AND date = ? AND shift = ?"
	args := []interface{}{key.CompanyId, key.Date, key.Shift}

	if err := s.DB.WithContext(ctx).Model(&SubmittedBalance{}).Where(where, args...).Count(&counts.SubmittedBalances).Error; err != nil {
		return counts, err
	}
	if err := s.DB.WithContext(ctx).Model(&Commission{}).Where(where, args...).Count(&counts.Commissions).Error; err != nil {
		return counts, err
	}
	if err := s.DB.WithContext(ctx).Model(&CashCount{}).Where(where, args...).Count(&counts.CashCounts).Error; err != nil {
		return counts, err
	}
	if err := s.DB.WithContext(ctx).Model(&ReportedTotal{}).Where(where, args...).Count(&counts.ReportedTotals).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

func (s *GormLedgerStore) GetReconciliation(ctx context.Context, key ReconKey) (*Reconciliation, error) {
	var record Reconciliation
	err := s.DB.WithContext(ctx).
		Where("company_id = ? AND date = ? AND shift = ?", key.CompanyId, key.Date, key.Shift).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// errReconUpdateMissed signals that the guarded update matched zero rows.
var errReconUpdateMissed = errors.New("reconciliation row changed underneath the update")

// UpsertReconciliation writes the computed record for its window.
//
// A finalized stored record is immutable: the attempt fails with a
// ConflictError and the stored record stays untouched, even when the
// finalization lands between the read and the guarded update. A concurrent
// create losing the unique-key race re-reads the winner's row and retries as
// an update, so both concurrent callers converge on one record. Updating an
// existing record resets its approval to PENDING and clears any rejection.
func (s *GormLedgerStore) UpsertReconciliation(ctx context.Context, record *Reconciliation) error {
	key := ReconKey{CompanyId: record.CompanyId, Date: record.Date, Shift: record.Shift}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.GetReconciliation(ctx, key)
		if err != nil && !utils.IsNotFoundError(err) {
			return err
		}

		if existing == nil {
			record.ReconciliationStatus = ReconciliationStatusCalculated
			record.ApprovalStatus = ApprovalStatusPending
			createErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Create(record).Error; err != nil {
					return err
				}
				return PublishReconEvent(ctx, tx, record, ReconEventTypeCalculated)
			})
			if createErr == nil {
				return nil
			}
			if utils.IsDuplicateKeyError(createErr) {
				// Lost the race; loop and update the winner's row.
				continue
			}
			return createErr
		}

		if existing.IsFinalized || existing.ReconciliationStatus == ReconciliationStatusFinalized {
			return utils.NewConflictError("reconciliation for %s is finalized and cannot be recalculated", key.String())
		}
		if err := ValidateReconciliationTransition(existing.ReconciliationStatus, ReconciliationStatusCalculated); err != nil {
			return utils.NewConflictError("%v", err)
		}

		// Recalculation voids any earlier rejection: the record goes back to
		// PENDING and the rejection audit fields are cleared.
		updates := map[string]interface{}{
			"reconciliation_status": ReconciliationStatusCalculated,
			"approval_status":       ApprovalStatusPending,
			"total_float":           record.TotalFloat,
			"total_cash":            record.TotalCash,
			"total_commissions":     record.TotalCommissions,
			"expected_closing":      record.ExpectedClosing,
			"actual_closing":        record.ActualClosing,
			"variance":              record.Variance,
			"status":                record.Status,
			"reconciled_by":         record.ReconciledBy,
			"reconciled_at":         record.ReconciledAt,
			"rejected_by":           "",
			"rejected_at":           nil,
			"rejection_reason":      "",
			"notes":                 record.Notes,
		}
		record.ID = existing.ID
		record.ReconciliationStatus = ReconciliationStatusCalculated
		record.ApprovalStatus = ApprovalStatusPending
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&Reconciliation{}).
				Where("id = ? AND is_finalized = ?", existing.ID, false).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// The record was finalized between our read and this
				// write; the re-read on the next pass decides.
				return errReconUpdateMissed
			}
			return PublishReconEvent(ctx, tx, record, ReconEventTypeCalculated)
		})
		if err == errReconUpdateMissed {
			continue
		}
		if err != nil {
			return err
		}
		return nil
	}

	return utils.NewConflictError("could not reconcile %s: concurrent writers kept the record busy", key.String())
}

func GetReconciliationById(ctx context.Context, db *gorm.DB, companyId int, id int) (*Reconciliation, error) {
	var record Reconciliation
	err := db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

type ReconciliationFilter struct {
	DateFrom       *time.Time
	DateTo         *time.Time
	Shift          *ShiftType
	Status         *CheckStatus
	ApprovalStatus *ApprovalStatus
}

func ListReconciliations(ctx context.Context, db *gorm.DB, companyId int, filter ReconciliationFilter) ([]Reconciliation, error) {
	query := db.WithContext(ctx).Where("company_id = ?", companyId)
	if filter.DateFrom != nil {
		query = query.Where("date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("date <= ?", *filter.DateTo)
	}
	if filter.Shift != nil {
		query = query.Where("shift = ?", *filter.Shift)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ApprovalStatus != nil {
		query = query.Where("approval_status = ?", *filter.ApprovalStatus)
	}

	var records []Reconciliation
	err := query.Order("date desc, shift desc").Find(&records).Error
	return records, err
}
