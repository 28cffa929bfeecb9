package models

import (
	"context"
	"time"

	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashCount is one denomination line of a physical till count.
type CashCount struct {
	ID           int             `gorm:"primary_key" json:"id"`
	CompanyId    int             `gorm:"index;not null" json:"company_id"`
	Date         time.Time       `gorm:"index;not null" json:"date"`
	Shift        ShiftType       `gorm:"type:enum('AM','PM');not null" json:"shift"`
	Denomination decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"denomination" binding:"required"`
	Quantity     int             `gorm:"not null" json:"quantity" binding:"required"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	CountedBy    string          `gorm:"size:100" json:"counted_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewCashCount struct {
	Date         time.Time       `json:"date"`
	Shift        ShiftType       `json:"shift" binding:"required"`
	Denomination decimal.Decimal `json:"denomination" binding:"required"`
	Quantity     int             `json:"quantity" binding:"required"`
	CountedBy    string          `json:"counted_by"`
}

func CreateCashCount(ctx context.Context, db *gorm.DB, companyId int, input *NewCashCount) (*CashCount, error) {
	if input.Denomination.IsNegative() || input.Denomination.IsZero() {
		return nil, utils.NewValidationError("denomination must be positive")
	}
	if input.Quantity < 0 {
		return nil, utils.NewValidationError("quantity cannot be negative")
	}

	record := CashCount{
		CompanyId:    companyId,
		Date:         input.Date,
		Shift:        input.Shift,
		Denomination: input.Denomination,
		Quantity:     input.Quantity,
		Amount:       input.Denomination.Mul(decimal.NewFromInt(int64(input.Quantity))),
		CountedBy:    input.CountedBy,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func ListCashCounts(ctx context.Context, db *gorm.DB, companyId int, date time.Time, shift ShiftType) ([]CashCount, error) {
	var records []CashCount
	err := db.WithContext(ctx).
		Where("company_id = ? AND date = ? AND shift = ?", companyId, date, shift).
		Order("denomination desc").
		Find(&records).Error
	return records, err
}
