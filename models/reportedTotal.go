package models

import (
	"context"
	"time"

	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportedTotal is one normalized row of an uploaded end-of-shift report
// file. Write-once: the row hash makes re-ingesting the same file line a
// no-op at the database level.
type ReportedTotal struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	CompanyId          int             `gorm:"index;not null" json:"company_id"`
	AccountId          int             `gorm:"index;not null" json:"account_id"`
	Account            *Account        `json:"account,omitempty"`
	Date               time.Time       `gorm:"index;not null" json:"date"`
	Shift              ShiftType       `gorm:"type:enum('AM','PM');not null" json:"shift"`
	ReportedTotalFloat decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"reported_total_float"`
	ReportedTotalCash  decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"reported_total_cash"`
	ReportedGrandTotal decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"reported_grand_total"`
	FileName           string          `gorm:"size:255" json:"file_name"`
	FileUrl            string          `gorm:"size:512" json:"file_url"`
	FileSha256         string          `gorm:"size:44;index;not null" json:"file_sha256"`
	Sha256             string          `gorm:"size:44;not null;unique" json:"sha256"`
	Source             SourceType      `gorm:"type:enum('whatsapp','mobile_app','manual','system');not null;default:manual" json:"source"`
	SubmittedAt        time.Time       `gorm:"not null" json:"submitted_at"`
	SubmittedBy        string          `gorm:"size:100" json:"submitted_by"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ReportFileExists answers the file-level idempotency question before any row
// is parsed.
func ReportFileExists(ctx context.Context, db *gorm.DB, companyId int, fileSha256 string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&ReportedTotal{}).
		Where("company_id = ? AND file_sha256 = ?", companyId, fileSha256).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CreateReportedTotal(ctx context.Context, db *gorm.DB, record *ReportedTotal) error {
	if err := db.WithContext(ctx).Create(record).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return utils.NewDuplicateContentError("reported total row already ingested (hash %s)", record.Sha256)
		}
		return err
	}
	return nil
}

func ListReportedTotals(ctx context.Context, db *gorm.DB, companyId int, date time.Time, shift ShiftType) ([]ReportedTotal, error) {
	var records []ReportedTotal
	err := db.WithContext(ctx).
		Preload("Account").
		Where("company_id = ? AND date = ? AND shift = ?", companyId, date, shift).
		Order("submitted_at asc").
		Find(&records).Error
	return records, err
}
