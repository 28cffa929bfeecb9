package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApprovalWorkflow moves reconciliation records through their approval
// states. Approving finalizes the record; rejecting leaves it re-runnable.
// Both write a lifecycle event into the outbox in the same transaction.
type ApprovalWorkflow struct {
	DB *gorm.DB

	now func() time.Time
}

func NewApprovalWorkflow(db *gorm.DB) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		DB:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (w *ApprovalWorkflow) loadForUpdate(ctx context.Context, tx *gorm.DB, companyId, reconciliationId int) (*models.Reconciliation, error) {
	var record models.Reconciliation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id = ?", companyId, reconciliationId).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// approveRecord validates the transition and applies the approval to the
// record in place, returning the column updates to persist. A rejected
// record cannot be approved here: recalculation resets it to PENDING first.
func approveRecord(record *models.Reconciliation, approvedBy string, approvedAt time.Time) (map[string]interface{}, error) {
	if err := models.ValidateApprovalTransition(record.ApprovalStatus, models.ApprovalStatusApproved); err != nil {
		return nil, utils.NewConflictError("%v", err)
	}
	if err := models.ValidateReconciliationTransition(record.ReconciliationStatus, models.ReconciliationStatusFinalized); err != nil {
		return nil, utils.NewConflictError("%v", err)
	}

	record.ApprovalStatus = models.ApprovalStatusApproved
	record.ReconciliationStatus = models.ReconciliationStatusFinalized
	record.IsFinalized = true
	record.ApprovedBy = approvedBy
	record.ApprovedAt = &approvedAt

	return map[string]interface{}{
		"approval_status":       models.ApprovalStatusApproved,
		"reconciliation_status": models.ReconciliationStatusFinalized,
		"is_finalized":          true,
		"approved_by":           approvedBy,
		"approved_at":           approvedAt,
	}, nil
}

// rejectRecord validates the transition and applies the rejection to the
// record in place, returning the column updates to persist.
func rejectRecord(record *models.Reconciliation, rejectedBy, reason string, rejectedAt time.Time) (map[string]interface{}, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, utils.NewValidationError("rejection reason is required")
	}
	if err := models.ValidateApprovalTransition(record.ApprovalStatus, models.ApprovalStatusRejected); err != nil {
		return nil, utils.NewConflictError("%v", err)
	}

	record.ApprovalStatus = models.ApprovalStatusRejected
	record.RejectedBy = rejectedBy
	record.RejectedAt = &rejectedAt
	record.RejectionReason = reason

	return map[string]interface{}{
		"approval_status":  models.ApprovalStatusRejected,
		"rejected_by":      rejectedBy,
		"rejected_at":      rejectedAt,
		"rejection_reason": reason,
	}, nil
}

// Approve finalizes a calculated reconciliation: PENDING moves to APPROVED,
// the lifecycle reaches FINALIZED and every totals-affecting field is locked
// from then on. A rejected record has to be recalculated (which puts it back
// to PENDING) before it can land here.
func (w *ApprovalWorkflow) Approve(ctx context.Context, companyId, reconciliationId int, approvedBy string) (*models.Reconciliation, error) {
	var approved *models.Reconciliation

	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := w.loadForUpdate(ctx, tx, companyId, reconciliationId)
		if err != nil {
			return err
		}

		updates, err := approveRecord(record, approvedBy, w.now())
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Reconciliation{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
			return err
		}

		if err := models.PublishReconEvent(ctx, tx, record, models.ReconEventTypeApproved); err != nil {
			return err
		}

		approved = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Reject requires a reason and intentionally does not finalize: the record
// stays CALCULATED so it can be recalculated and re-submitted for approval.
func (w *ApprovalWorkflow) Reject(ctx context.Context, companyId, reconciliationId int, rejectedBy, reason string) (*models.Reconciliation, error) {
	var rejected *models.Reconciliation

	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := w.loadForUpdate(ctx, tx, companyId, reconciliationId)
		if err != nil {
			return err
		}

		updates, err := rejectRecord(record, rejectedBy, reason, w.now())
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Reconciliation{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
			return err
		}

		if err := models.PublishReconEvent(ctx, tx, record, models.ReconEventTypeRejected); err != nil {
			return err
		}

		rejected = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}
