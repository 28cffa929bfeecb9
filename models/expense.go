package models

import (
	"context"
	"time"

	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Expense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CompanyId   int             `gorm:"index;not null" json:"company_id"`
	Name        string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount" binding:"required"`
	Category    string          `gorm:"size:100" json:"category"`
	ExpenseDate time.Time       `gorm:"index;not null" json:"expense_date"`
	RecordedBy  string          `gorm:"size:100" json:"recorded_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	Name        string          `json:"name" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Category    string          `json:"category"`
	ExpenseDate time.Time       `json:"expense_date"`
	RecordedBy  string          `json:"recorded_by"`
}

func CreateExpense(ctx context.Context, db *gorm.DB, companyId int, input *NewExpense) (*Expense, error) {
	if input.Amount.IsNegative() {
		return nil, utils.NewValidationError("amount cannot be negative")
	}

	expenseDate := input.ExpenseDate
	if expenseDate.IsZero() {
		expenseDate = time.Now().UTC()
	}
	// Expenses book against the company-local calendar day.
	expenseDate, err := utils.ConvertToDate(expenseDate, GetCompanyTimezone(ctx, db, companyId))
	if err != nil {
		return nil, err
	}

	expense := Expense{
		CompanyId:   companyId,
		Name:        input.Name,
		Amount:      input.Amount,
		Category:    input.Category,
		ExpenseDate: expenseDate,
		RecordedBy:  input.RecordedBy,
	}
	if err := db.WithContext(ctx).Create(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

func ListExpenses(ctx context.Context, db *gorm.DB, companyId int, from, to *time.Time) ([]Expense, error) {
	query := db.WithContext(ctx).Where("company_id = ?", companyId)
	if from != nil {
		query = query.Where("expense_date >= ?", *from)
	}
	if to != nil {
		query = query.Where("expense_date <= ?", *to)
	}
	var expenses []Expense
	err := query.Order("expense_date desc").Find(&expenses).Error
	return expenses, err
}
