package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The fake below mirrors the
// GormLedgerStore contract: per-account sums derived from the stored rows,
// create-or-update on the reconciliation key, and a finalized record that
// refuses any rewrite.

type fakeLedgerStore struct {
	mu sync.Mutex

	submittedRows map[models.ReconKey][]models.AccountAmount
	reportedRows  map[models.ReconKey][]models.AccountAmount
	cashTotal     map[models.ReconKey]decimal.Decimal
	commissions   map[models.ReconKey]decimal.Decimal
	counts        map[models.ReconKey]models.SourceCounts

	records map[models.ReconKey]*models.Reconciliation
	nextID  int
	upserts int

	// beforeWrite, when set, runs once between the existence check and the
	// guarded overwrite, mimicking a concurrent writer landing in that gap.
	beforeWrite func()
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		submittedRows: map[models.ReconKey][]models.AccountAmount{},
		reportedRows:  map[models.ReconKey][]models.AccountAmount{},
		cashTotal:     map[models.ReconKey]decimal.Decimal{},
		commissions:   map[models.ReconKey]decimal.Decimal{},
		counts:        map[models.ReconKey]models.SourceCounts{},
		records:       map[models.ReconKey]*models.Reconciliation{},
	}
}

func sumAmounts(rows []models.AccountAmount) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}

func (s *fakeLedgerStore) SumSubmittedBalances(ctx context.Context, key models.ReconKey) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumAmounts(s.submittedRows[key]), nil
}

func (s *fakeLedgerStore) SumCashCounts(ctx context.Context, key models.ReconKey) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cashTotal[key], nil
}

func (s *fakeLedgerStore) SumCommissions(ctx context.Context, key models.ReconKey) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commissions[key], nil
}

func (s *fakeLedgerStore) SumReportedGrandTotals(ctx context.Context, key models.ReconKey) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumAmounts(s.reportedRows[key]), nil
}

func (s *fakeLedgerStore) SubmittedBalancesByAccount(ctx context.Context, key models.ReconKey) ([]models.AccountAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AccountAmount{}, s.submittedRows[key]...), nil
}

func (s *fakeLedgerStore) ReportedTotalsByAccount(ctx context.Context, key models.ReconKey) ([]models.AccountAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AccountAmount{}, s.reportedRows[key]...), nil
}

func (s *fakeLedgerStore) SourceCounts(ctx context.Context, key models.ReconKey) (models.SourceCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *fakeLedgerStore) GetReconciliation(ctx context.Context, key models.ReconKey) (*models.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *fakeLedgerStore) UpsertReconciliation(ctx context.Context, record *models.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++

	key := models.ReconKey{CompanyId: record.CompanyId, Date: record.Date, Shift: record.Shift}
	existing, ok := s.records[key]
	if !ok {
		s.nextID++
		record.ID = s.nextID
		record.ReconciliationStatus = models.ReconciliationStatusCalculated
		record.ApprovalStatus = models.ApprovalStatusPending
		clone := *record
		s.records[key] = &clone
		return nil
	}

	if existing.IsFinalized || existing.ReconciliationStatus == models.ReconciliationStatusFinalized {
		return utils.NewConflictError("reconciliation for %s is finalized and cannot be recalculated", key.String())
	}

	if s.beforeWrite != nil {
		hook := s.beforeWrite
		s.beforeWrite = nil
		s.mu.Unlock()
		hook()
		s.mu.Lock()
		// The guarded update re-checks, like the conditional UPDATE does.
		existing = s.records[key]
		if existing.IsFinalized || existing.ReconciliationStatus == models.ReconciliationStatusFinalized {
			return utils.NewConflictError("reconciliation for %s is finalized and cannot be recalculated", key.String())
		}
	}

	// Recalculation resets the approval and voids any earlier rejection.
	record.ID = existing.ID
	record.ReconciliationStatus = models.ReconciliationStatusCalculated
	record.ApprovalStatus = models.ApprovalStatusPending
	record.RejectedBy = ""
	record.RejectedAt = nil
	record.RejectionReason = ""
	clone := *record
	s.records[key] = &clone
	return nil
}

func testKey() models.ReconKey {
	return models.ReconKey{
		CompanyId: 1,
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:     models.ShiftTypeAM,
	}
}

func defaultSettings() config.ReconciliationSettings {
	return config.ReconciliationSettings{
		Tolerance:    decimal.New(100, -2),
		ActualSource: config.ActualClosingFromReported,
	}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestPerformReconciliation_WithinTolerancePasses(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "150000.00")},
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "82500.50")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "150000.50")},
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "82500.50")},
	}

	engine := NewReconciliationEngine(store, defaultSettings())
	result, err := engine.PerformReconciliation(context.Background(), key, "amina")
	if err != nil {
		t.Fatalf("PerformReconciliation error: %v", err)
	}

	record := result.Record
	if !record.ExpectedClosing.Equal(dec(t, "232500.50")) {
		t.Fatalf("expected_closing = %s, want 232500.50", record.ExpectedClosing)
	}
	if !record.ActualClosing.Equal(dec(t, "232501.00")) {
		t.Fatalf("actual_closing = %s, want 232501.00", record.ActualClosing)
	}
	if !record.Variance.Equal(record.ExpectedClosing.Sub(record.ActualClosing)) {
		t.Fatalf("variance %s does not equal expected - actual", record.Variance)
	}
	if record.Status != models.CheckStatusPassed {
		t.Fatalf("status = %s, want PASSED (variance %s within 1.00)", record.Status, record.Variance)
	}
	if record.ReconciliationStatus != models.ReconciliationStatusCalculated {
		t.Fatalf("reconciliation_status = %s, want CALCULATED", record.ReconciliationStatus)
	}
	if record.ApprovalStatus != models.ApprovalStatusPending {
		t.Fatalf("approval_status = %s, want PENDING", record.ApprovalStatus)
	}
	if record.ReconciledBy != "amina" || record.ReconciledAt == nil {
		t.Fatalf("reconciled_by/at not stamped: %q %v", record.ReconciledBy, record.ReconciledAt)
	}
	if !result.BalanceReport.IsClean() {
		t.Fatalf("expected a clean balance report, got %+v", result.BalanceReport)
	}

	stored, err := store.GetReconciliation(context.Background(), key)
	if err != nil {
		t.Fatalf("record was not persisted: %v", err)
	}
	if !stored.Variance.Equal(record.Variance) {
		t.Fatalf("persisted variance %s != returned %s", stored.Variance, record.Variance)
	}
}

func TestPerformReconciliation_ToleranceBoundary(t *testing.T) {
	cases := []struct {
		reported string
		want     models.CheckStatus
	}{
		{"100000.00", models.CheckStatusPassed}, // variance 0
		{"99999.50", models.CheckStatusPassed},  // variance 0.50
		{"99999.00", models.CheckStatusPassed},  // variance exactly 1.00
		{"100001.00", models.CheckStatusPassed}, // variance exactly -1.00
		{"99998.99", models.CheckStatusFlagged}, // variance 1.01
		{"99998.00", models.CheckStatusFlagged}, // variance 2.00
	}

	for _, tc := range cases {
		store := newFakeLedgerStore()
		key := testKey()
		store.submittedRows[key] = []models.AccountAmount{
			{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
		}
		store.reportedRows[key] = []models.AccountAmount{
			{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, tc.reported)},
		}

		engine := NewReconciliationEngine(store, defaultSettings())
		result, err := engine.PerformReconciliation(context.Background(), key, "system")
		if err != nil {
			t.Fatalf("reported %s: PerformReconciliation error: %v", tc.reported, err)
		}
		if result.Record.Status != tc.want {
			t.Fatalf("reported %s: status = %s, want %s (variance %s)",
				tc.reported, result.Record.Status, tc.want, result.Record.Variance)
		}
	}
}

func TestPerformReconciliation_DirtyBalanceReportFlagsDespiteZeroVariance(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	// Per-account discrepancies that cancel out in the totals: STANBIC only
	// appears in the report, AIRTEL only in the submissions, same amount.
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "50000.00")},
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "70000.00")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 2, AccountName: "MTN", Amount: dec(t, "70000.00")},
		{AccountId: 3, AccountName: "STANBIC", Amount: dec(t, "50000.00")},
	}

	engine := NewReconciliationEngine(store, defaultSettings())
	result, err := engine.PerformReconciliation(context.Background(), key, "system")
	if err != nil {
		t.Fatalf("PerformReconciliation error: %v", err)
	}

	if !result.Record.Variance.IsZero() {
		t.Fatalf("variance = %s, want 0", result.Record.Variance)
	}
	if result.Record.Status != models.CheckStatusFlagged {
		t.Fatalf("status = %s, want FLAGGED: totals cancel but accounts disagree", result.Record.Status)
	}
	report := result.BalanceReport
	if len(report.MissingFromActual) != 1 || report.MissingFromActual[0].AccountName != "STANBIC" {
		t.Fatalf("missing_from_actual = %+v, want STANBIC only", report.MissingFromActual)
	}
	if len(report.MissingFromReport) != 1 || report.MissingFromReport[0].AccountName != "AIRTEL" {
		t.Fatalf("missing_from_report = %+v, want AIRTEL only", report.MissingFromReport)
	}
}

func TestPerformReconciliation_RerunOverwritesAndResetsApproval(t *testing.T) {
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

	// A manager rejects, a sloppy row gets corrected, the window is re-run.
	rejectedAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store.mu.Lock()
	store.records[key].ApprovalStatus = models.ApprovalStatusRejected
	store.records[key].RejectedBy = "brenda"
	store.records[key].RejectedAt = &rejectedAt
	store.records[key].RejectionReason = "AIRTEL figure looks transposed"
	store.mu.Unlock()
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}

	second, err := engine.PerformReconciliation(context.Background(), key, "amina")
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if second.Record.ID != first.Record.ID {
		t.Fatalf("re-run created a second record: id %d then %d", first.Record.ID, second.Record.ID)
	}
	if second.Record.Status != models.CheckStatusPassed {
		t.Fatalf("second run status = %s, want PASSED after correction", second.Record.Status)
	}
	if second.Record.ApprovalStatus != models.ApprovalStatusPending {
		t.Fatalf("re-run approval_status = %s, want PENDING: recalculation must void the rejection", second.Record.ApprovalStatus)
	}

	stored, _ := store.GetReconciliation(context.Background(), key)
	if stored.RejectedBy != "" || stored.RejectedAt != nil || stored.RejectionReason != "" {
		t.Fatalf("stale rejection fields survived the re-run: %+v", stored)
	}
}

func TestPerformReconciliation_FinalizedRecordIsImmutable(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.records[key] = &models.Reconciliation{
		ID:                   7,
		CompanyId:            key.CompanyId,
		Date:                 key.Date,
		Shift:                key.Shift,
		ReconciliationStatus: models.ReconciliationStatusFinalized,
		ApprovalStatus:       models.ApprovalStatusApproved,
		Variance:             dec(t, "0.25"),
		IsFinalized:          true,
	}

	engine := NewReconciliationEngine(store, defaultSettings())
	_, err := engine.PerformReconciliation(context.Background(), key, "amina")
	if err == nil {
		t.Fatal("expected a conflict re-running a finalized reconciliation")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}

	stored, _ := store.GetReconciliation(context.Background(), key)
	if !stored.Variance.Equal(dec(t, "0.25")) || !stored.IsFinalized {
		t.Fatalf("finalized record was modified: %+v", stored)
	}
}

func TestPerformReconciliation_FinalizeDuringRerunYieldsConflict(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}

	engine := NewReconciliationEngine(store, defaultSettings())
	if _, err := engine.PerformReconciliation(context.Background(), key, "amina"); err != nil {
		t.Fatalf("first run error: %v", err)
	}

	// An approval lands between the re-run's read and its guarded write.
	// The re-run must surface a conflict, never silent success over a row
	// it did not persist.
	store.beforeWrite = func() {
		store.mu.Lock()
		defer store.mu.Unlock()
		record := store.records[key]
		record.ApprovalStatus = models.ApprovalStatusApproved
		record.ReconciliationStatus = models.ReconciliationStatusFinalized
		record.IsFinalized = true
	}

	_, err := engine.PerformReconciliation(context.Background(), key, "amina")
	if err == nil {
		t.Fatal("expected a conflict when the record is finalized mid-run")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}

	stored, _ := store.GetReconciliation(context.Background(), key)
	if !stored.IsFinalized || stored.ApprovalStatus != models.ApprovalStatusApproved {
		t.Fatalf("finalized record was disturbed by the losing re-run: %+v", stored)
	}
}

func TestPerformReconciliation_ConcurrentRunsConvergeToOneRecord(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}

	engine := NewReconciliationEngine(store, defaultSettings())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.PerformReconciliation(context.Background(), key, "system"); err != nil {
				t.Errorf("concurrent run error: %v", err)
			}
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record for the window, got %d", len(store.records))
	}
	record := store.records[key]
	if record.Status != models.CheckStatusPassed || !record.Variance.IsZero() {
		t.Fatalf("converged record inconsistent: status=%s variance=%s", record.Status, record.Variance)
	}
	if store.upserts != 16 {
		t.Fatalf("expected every run to reach the store, upserts = %d", store.upserts)
	}
}

func TestPerformReconciliation_CombinationRules(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.submittedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.reportedRows[key] = []models.AccountAmount{
		{AccountId: 1, AccountName: "AIRTEL", Amount: dec(t, "100000.00")},
	}
	store.cashTotal[key] = dec(t, "25000.00")
	store.commissions[key] = dec(t, "1500.00")

	cases := []struct {
		name         string
		settings     config.ReconciliationSettings
		wantExpected string
		wantActual   string
	}{
		{
			name:         "reported actual, float only",
			settings:     defaultSettings(),
			wantExpected: "100000.00",
			wantActual:   "100000.00",
		},
		{
			name: "cash actual source",
			settings: config.ReconciliationSettings{
				Tolerance:    decimal.New(100, -2),
				ActualSource: config.ActualClosingFromCash,
			},
			wantExpected: "100000.00",
			wantActual:   "25000.00",
		},
		{
			name: "expected folds in cash and commissions",
			settings: config.ReconciliationSettings{
				Tolerance:                   decimal.New(100, -2),
				ActualSource:                config.ActualClosingFromReported,
				ExpectedIncludesCash:        true,
				ExpectedIncludesCommissions: true,
			},
			wantExpected: "126500.00",
			wantActual:   "100000.00",
		},
	}

	for _, tc := range cases {
		engine := NewReconciliationEngine(store, tc.settings)
		summary, err := engine.SummarizeReconciliation(context.Background(), key)
		if err != nil {
			t.Fatalf("%s: SummarizeReconciliation error: %v", tc.name, err)
		}
		if !summary.Record.ExpectedClosing.Equal(dec(t, tc.wantExpected)) {
			t.Fatalf("%s: expected_closing = %s, want %s", tc.name, summary.Record.ExpectedClosing, tc.wantExpected)
		}
		if !summary.Record.ActualClosing.Equal(dec(t, tc.wantActual)) {
			t.Fatalf("%s: actual_closing = %s, want %s", tc.name, summary.Record.ActualClosing, tc.wantActual)
		}
	}
}

func TestSummarizeReconciliation_ReadyNeedsBothSides(t *testing.T) {
	store := newFakeLedgerStore()
	key := testKey()
	store.counts[key] = models.SourceCounts{SubmittedBalances: 4}

	engine := NewReconciliationEngine(store, defaultSettings())
	summary, err := engine.SummarizeReconciliation(context.Background(), key)
	if err != nil {
		t.Fatalf("SummarizeReconciliation error: %v", err)
	}
	if summary.Ready {
		t.Fatal("ready with no reported totals; the comparison has only one side")
	}

	store.counts[key] = models.SourceCounts{SubmittedBalances: 4, ReportedTotals: 4}
	summary, err = engine.SummarizeReconciliation(context.Background(), key)
	if err != nil {
		t.Fatalf("SummarizeReconciliation error: %v", err)
	}
	if !summary.Ready {
		t.Fatal("not ready with both submitted balances and reported totals present")
	}

	// CASH actual source needs cash counts, not reported totals.
	cashSettings := defaultSettings()
	cashSettings.ActualSource = config.ActualClosingFromCash
	engine = NewReconciliationEngine(store, cashSettings)
	summary, err = engine.SummarizeReconciliation(context.Background(), key)
	if err != nil {
		t.Fatalf("SummarizeReconciliation error: %v", err)
	}
	if summary.Ready {
		t.Fatal("ready under CASH source without cash counts")
	}

	if len(store.records) != 0 {
		t.Fatalf("summary persisted %d records; it must be a dry run", len(store.records))
	}
}
