package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
)

func calculatedRecord() *models.Reconciliation {
	return &models.Reconciliation{
		ID:                   3,
		CompanyId:            1,
		Date:                 time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:                models.ShiftTypeAM,
		ReconciliationStatus: models.ReconciliationStatusCalculated,
		ApprovalStatus:       models.ApprovalStatusPending,
	}
}

func TestApproveRecord_FinalizesPendingRecord(t *testing.T) {
	record := calculatedRecord()
	approvedAt := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	updates, err := approveRecord(record, "brenda", approvedAt)
	if err != nil {
		t.Fatalf("approve error: %v", err)
	}

	if record.ApprovalStatus != models.ApprovalStatusApproved {
		t.Fatalf("approval_status = %s, want APPROVED", record.ApprovalStatus)
	}
	if record.ReconciliationStatus != models.ReconciliationStatusFinalized || !record.IsFinalized {
		t.Fatalf("approval did not finalize the record: %+v", record)
	}
	if record.ApprovedBy != "brenda" || record.ApprovedAt == nil || !record.ApprovedAt.Equal(approvedAt) {
		t.Fatalf("reviewer stamp missing: by=%q at=%v", record.ApprovedBy, record.ApprovedAt)
	}
	if updates["is_finalized"] != true {
		t.Fatalf("updates missing is_finalized: %v", updates)
	}
}

func TestApproveRecord_RejectedMustBeRecalculatedFirst(t *testing.T) {
	record := calculatedRecord()
	record.ApprovalStatus = models.ApprovalStatusRejected
	record.RejectionReason = "AIRTEL figure looks transposed"

	_, err := approveRecord(record, "brenda", time.Now().UTC())
	if err == nil {
		t.Fatal("expected a conflict approving a rejected record directly")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
	if record.IsFinalized || record.ApprovalStatus != models.ApprovalStatusRejected {
		t.Fatalf("failed approval mutated the record: %+v", record)
	}
}

func TestApproveRecord_ApprovedIsTerminal(t *testing.T) {
	record := calculatedRecord()
	record.ApprovalStatus = models.ApprovalStatusApproved
	record.ReconciliationStatus = models.ReconciliationStatusFinalized
	record.IsFinalized = true

	if _, err := approveRecord(record, "brenda", time.Now().UTC()); !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError re-approving, got %v", err)
	}
}

func TestRejectRecord_RequiresReason(t *testing.T) {
	for _, reason := range []string{"", "   "} {
		record := calculatedRecord()
		_, err := rejectRecord(record, "brenda", reason, time.Now().UTC())
		if err == nil {
			t.Fatalf("reason %q: expected an error", reason)
		}
		if !utils.IsValidationError(err) {
			t.Fatalf("reason %q: expected ValidationError, got %T: %v", reason, err, err)
		}
	}
}

func TestRejectRecord_StampsReviewerAndKeepsRecordReRunnable(t *testing.T) {
	record := calculatedRecord()
	rejectedAt := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	updates, err := rejectRecord(record, "brenda", "  counts look stale  ", rejectedAt)
	if err != nil {
		t.Fatalf("reject error: %v", err)
	}

	if record.ApprovalStatus != models.ApprovalStatusRejected {
		t.Fatalf("approval_status = %s, want REJECTED", record.ApprovalStatus)
	}
	if record.RejectionReason != "counts look stale" {
		t.Fatalf("rejection_reason = %q, want trimmed reason", record.RejectionReason)
	}
	if record.RejectedBy != "brenda" || record.RejectedAt == nil {
		t.Fatalf("reviewer stamp missing: by=%q at=%v", record.RejectedBy, record.RejectedAt)
	}
	if record.IsFinalized || record.ReconciliationStatus != models.ReconciliationStatusCalculated {
		t.Fatalf("rejection must not finalize: %+v", record)
	}
	if _, ok := updates["is_finalized"]; ok {
		t.Fatalf("reject updates must not touch is_finalized: %v", updates)
	}
}

func TestRejectRecord_ApprovedIsTerminal(t *testing.T) {
	record := calculatedRecord()
	record.ApprovalStatus = models.ApprovalStatusApproved
	record.ReconciliationStatus = models.ReconciliationStatusFinalized
	record.IsFinalized = true

	if _, err := rejectRecord(record, "brenda", "too late", time.Now().UTC()); !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError rejecting a finalized record, got %v", err)
	}
}

// The full correction loop: a flagged window is rejected, the underlying
// rows are fixed, the window is recalculated back to PENDING and only then
// approved. Direct approval of the rejected record must not work.
func TestRejectThenRerunThenApprove_Cycle(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "98000.00")},
	}

	engine := NewReconciliationEngine(store, defaultSettings())
	first, err := engine.PerformReconciliation(context.Background(), key, "amina")
	if err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if first.Record.Status != models.CheckStatusFlagged {
		t.Fatalf("first run status = %s, want FLAGGED", first.Record.Status)
	}

	record, err := store.GetReconciliation(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if _, err := rejectRecord(record, "brenda", "AIRTEL figure looks transposed", time.Now().UTC()); err != nil {
		t.Fatalf("reject error: %v", err)
	}
	store.mu.Lock()
	store.records[key] = record
	store.mu.Unlock()

	if _, err := approveRecord(record, "brenda", time.Now().UTC()); !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError approving straight from REJECTED, got %v", err)
	}

	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	second, err := engine.PerformReconciliation(context.Background(), key, "amina")
	if err != nil {
		t.Fatalf("re-run error: %v", err)
	}
	if second.Record.ApprovalStatus != models.ApprovalStatusPending {
		t.Fatalf("re-run approval_status = %s, want PENDING", second.Record.ApprovalStatus)
	}

	record, err = store.GetReconciliation(context.Background(), key)
	if err != nil {
		t.Fatalf("get after re-run error: %v", err)
	}
	if _, err := approveRecord(record, "brenda", time.Now().UTC()); err != nil {
		t.Fatalf("approve after re-run error: %v", err)
	}
	store.mu.Lock()
	store.records[key] = record
	store.mu.Unlock()

	if _, err := engine.PerformReconciliation(context.Background(), key, "amina"); !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError re-running the approved window, got %v", err)
	}
}
