package workflow

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ReportRow is one normalized line parsed out of an end-of-shift workbook.
type ReportRow struct {
	AccountName string
	TotalFloat  decimal.Decimal
	TotalCash   decimal.Decimal
	GrandTotal  decimal.Decimal
}

// IngestionResult reports what an upload achieved. Rows commit before the
// reconciliation is attempted, so a reconciliation failure still leaves the
// rows ingested (ReconciliationError carries the reason).
type IngestionResult struct {
	FileSha256          string                  `json:"file_sha256"`
	Date                time.Time               `json:"date"`
	Shift               models.ShiftType        `json:"shift"`
	RowsIngested        int                     `json:"rows_ingested"`
	RowsSkipped         int                     `json:"rows_skipped"`
	Reconciliation      *ReconciliationResult   `json:"reconciliation,omitempty"`
	ReconciliationError string                  `json:"reconciliation_error,omitempty"`
}

// DeriveReportWindow maps an upload instant to its reconciliation window in
// the company's timezone: before noon is the AM shift, noon onward is PM.
func DeriveReportWindow(uploadedAt time.Time, timezone string) (time.Time, models.ShiftType, error) {
	if timezone == "" {
		timezone = utils.DefaultTimezone
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, "", err
	}
	local := uploadedAt.In(location)

	shift := models.ShiftTypeAM
	if local.Hour() >= 12 {
		shift = models.ShiftTypePM
	}

	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return date, shift, nil
}

// ParseReportRows extracts account rows from raw workbook bytes. The Zesha
// format carries a header row with ACCOUNT / FLOAT / CASH / GRAND TOTAL
// columns; data rows follow until the first blank account cell.
func ParseReportRows(content []byte) ([]ReportRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, utils.NewValidationError("unreadable report file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, utils.NewValidationError("report file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, utils.NewValidationError("unreadable report sheet: %v", err)
	}

	accountCol, floatCol, cashCol, grandCol := -1, -1, -1, -1
	headerRow := -1
	for i, row := range rows {
		for j, cell := range row {
			switch normalizeHeader(cell) {
			case "ACCOUNT":
				accountCol = j
			case "FLOAT":
				floatCol = j
			case "CASH":
				cashCol = j
			case "GRAND TOTAL", "GRANDTOTAL", "TOTAL":
				grandCol = j
			}
		}
		if accountCol >= 0 && grandCol >= 0 {
			headerRow = i
			break
		}
		accountCol, floatCol, cashCol, grandCol = -1, -1, -1, -1
	}
	if headerRow < 0 {
		return nil, utils.NewValidationError("report file has no ACCOUNT/GRAND TOTAL header row")
	}

	var parsed []ReportRow
	for _, row := range rows[headerRow+1:] {
		name := cellAt(row, accountCol)
		if strings.TrimSpace(name) == "" {
			break
		}
		// Trailing summary lines are not account rows.
		if normalizeHeader(name) == "TOTAL" || normalizeHeader(name) == "GRAND TOTAL" {
			break
		}

		totalFloat, err := utils.ParseDecimal(cellAt(row, floatCol))
		if err != nil {
			return nil, utils.NewValidationError("bad FLOAT value for %q: %v", name, err)
		}
		totalCash, err := utils.ParseDecimal(cellAt(row, cashCol))
		if err != nil {
			return nil, utils.NewValidationError("bad CASH value for %q: %v", name, err)
		}
		grandTotal, err := utils.ParseDecimal(cellAt(row, grandCol))
		if err != nil {
			return nil, utils.NewValidationError("bad GRAND TOTAL value for %q: %v", name, err)
		}
		if grandTotal.IsZero() {
			grandTotal = totalFloat.Add(totalCash)
		}

		parsed = append(parsed, ReportRow{
			AccountName: strings.TrimSpace(name),
			TotalFloat:  totalFloat,
			TotalCash:   totalCash,
			GrandTotal:  grandTotal,
		})
	}

	if len(parsed) == 0 {
		return nil, utils.NewValidationError("report file contains no account rows")
	}
	return parsed, nil
}

func normalizeHeader(cell string) string {
	return strings.ToUpper(strings.TrimSpace(cell))
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// ReportIngestion turns uploaded workbook bytes into ReportedTotal rows and
// chains a reconciliation for the derived window.
type ReportIngestion struct {
	DB     *gorm.DB
	Engine *ReconciliationEngine

	now func() time.Time
}

func NewReportIngestion(db *gorm.DB, engine *ReconciliationEngine) *ReportIngestion {
	return &ReportIngestion{
		DB:     db,
		Engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IngestReportFile is the whole upload pipeline: dedup on file bytes, parse,
// persist rows in one transaction, then reconcile in a second transaction.
// Byte-identical re-uploads fail with DuplicateContentError before any parse.
func (ing *ReportIngestion) IngestReportFile(ctx context.Context, companyId int, fileName, fileUrl string, content []byte, source models.SourceType, submittedBy string) (*IngestionResult, error) {
	if len(content) == 0 {
		return nil, utils.NewValidationError("report file is empty")
	}

	fileHash := utils.ContentHash(content)
	exists, err := models.ReportFileExists(ctx, ing.DB, companyId, fileHash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, utils.NewDuplicateContentError("report file already ingested (hash %s)", fileHash)
	}

	parsedRows, err := ParseReportRows(content)
	if err != nil {
		return nil, err
	}

	timezone := models.GetCompanyTimezone(ctx, ing.DB, companyId)
	uploadedAt := ing.now()
	date, shift, err := DeriveReportWindow(uploadedAt, timezone)
	if err != nil {
		return nil, err
	}

	if source == "" {
		source = models.SourceTypeManual
	}

	result := &IngestionResult{
		FileSha256: fileHash,
		Date:       date,
		Shift:      shift,
	}

	err = ing.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range parsedRows {
			accountId, err := models.ResolveOrCreateAccount(ctx, tx, companyId, row.AccountName)
			if err != nil {
				return err
			}

			record := models.ReportedTotal{
				CompanyId:          companyId,
				AccountId:          accountId,
				Date:               date,
				Shift:              shift,
				ReportedTotalFloat: row.TotalFloat,
				ReportedTotalCash:  row.TotalCash,
				ReportedGrandTotal: row.GrandTotal,
				FileName:           fileName,
				FileUrl:            fileUrl,
				FileSha256:         fileHash,
				Sha256: utils.RowHash(fileHash,
					models.NormalizeAccountName(row.AccountName),
					row.TotalFloat.StringFixed(2),
					row.TotalCash.StringFixed(2),
					row.GrandTotal.StringFixed(2)),
				Source:      source,
				SubmittedAt: uploadedAt,
				SubmittedBy: submittedBy,
			}
			if err := models.CreateReportedTotal(ctx, tx, &record); err != nil {
				// Identical row repeated inside one file collapses to one.
				if utils.IsDuplicateContentError(err) {
					result.RowsSkipped++
					continue
				}
				return err
			}
			result.RowsIngested++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reconciliation runs outside the row transaction: the ingested rows
	// stay committed even when this step fails, and the reconciliation can
	// be re-triggered without re-uploading.
	key := models.ReconKey{CompanyId: companyId, Date: date, Shift: shift}
	recon, reconErr := ing.Engine.PerformReconciliation(ctx, key, submittedBy)
	if reconErr != nil {
		config.LogError(config.GetLogger(), "workflow", "IngestReportFile", "chained reconciliation", key, reconErr)
		result.ReconciliationError = reconErr.Error()
		return result, nil
	}
	result.Reconciliation = recon
	return result, nil
}
