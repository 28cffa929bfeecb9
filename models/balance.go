package models

import (
	"context"
	"strconv"
	"time"

	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubmittedBalance is a write-once float declaration for one account in one
// (date, shift) window. Corrections are new rows, never updates.
type SubmittedBalance struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CompanyId   int             `gorm:"index;not null" json:"company_id"`
	AccountId   int             `gorm:"index;not null" json:"account_id" binding:"required"`
	Account     *Account        `json:"account,omitempty"`
	Date        time.Time       `gorm:"index;not null" json:"date"`
	Shift       ShiftType       `gorm:"type:enum('AM','PM');not null" json:"shift"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Source      SourceType      `gorm:"type:enum('whatsapp','mobile_app','manual','system');not null;default:manual" json:"source"`
	ImageUrl    string          `gorm:"size:512" json:"image_url"`
	MediaId     string          `gorm:"size:255" json:"media_id"`
	MessageId   string          `gorm:"size:255" json:"message_id"`
	Sha256      string          `gorm:"size:44;not null;unique" json:"sha256"`
	SubmittedAt time.Time       `gorm:"not null" json:"submitted_at"`
	SubmittedBy string          `gorm:"size:100" json:"submitted_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSubmittedBalance struct {
	AccountId   int             `json:"account_id" binding:"required"`
	AccountName string          `json:"account_name"`
	Date        time.Time       `json:"date"`
	Shift       ShiftType       `json:"shift" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Source      SourceType      `json:"source"`
	ImageUrl    string          `json:"image_url"`
	MediaId     string          `json:"media_id"`
	MessageId   string          `json:"message_id"`
	SubmittedBy string          `json:"submitted_by"`
}

// dedupHash derives the write-once identity of a submission. Same account,
// window, amount and provenance means the same physical message.
func (input *NewSubmittedBalance) dedupHash(companyId int) string {
	return utils.RowHash(
		"submitted_balance",
		strconv.Itoa(companyId),
		strconv.Itoa(input.AccountId),
		input.Date.Format("2006-01-02"),
		string(input.Shift),
		input.Amount.StringFixed(2),
		string(input.Source),
		input.MediaId,
		input.MessageId,
	)
}

func CreateSubmittedBalance(ctx context.Context, db *gorm.DB, companyId int, input *NewSubmittedBalance) (*SubmittedBalance, error) {
	if input.Amount.IsNegative() {
		return nil, utils.NewValidationError("amount cannot be negative")
	}

	source := input.Source
	if source == "" {
		source = SourceTypeManual
	}

	record := SubmittedBalance{
		CompanyId:   companyId,
		AccountId:   input.AccountId,
		Date:        input.Date,
		Shift:       input.Shift,
		Amount:      input.Amount,
		Source:      source,
		ImageUrl:    input.ImageUrl,
		MediaId:     input.MediaId,
		MessageId:   input.MessageId,
		Sha256:      input.dedupHash(companyId),
		SubmittedAt: time.Now().UTC(),
		SubmittedBy: input.SubmittedBy,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.NewDuplicateContentError("balance already submitted for account %d on %s %s", input.AccountId, input.Date.Format("2006-01-02"), input.Shift)
		}
		return nil, err
	}
	return &record, nil
}

func ListSubmittedBalances(ctx context.Context, db *gorm.DB, companyId int, date time.Time, shift ShiftType) ([]SubmittedBalance, error) {
	var records []SubmittedBalance
	err := db.WithContext(ctx).
		Preload("Account").
		Where("company_id = ? AND date = ? AND shift = ?", companyId, date, shift).
		Order("submitted_at asc").
		Find(&records).Error
	return records, err
}
