package models

import (
	"context"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CompanyInfo struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	Name                string          `gorm:"size:255;not null;unique" json:"name" binding:"required"`
	Emails              string          `gorm:"size:512" json:"emails"`
	Currency            string          `gorm:"size:10;not null;default:UGX" json:"currency"`
	Timezone            string          `gorm:"size:64;not null;default:Africa/Kampala" json:"timezone"`
	TotalWorkingCapital decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"total_working_capital"`
	OutstandingBalance  decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"outstanding_balance"`
	IsActive            *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetCompanyInfo(ctx context.Context, db *gorm.DB, companyId int) (*CompanyInfo, error) {
	var company CompanyInfo
	err := db.WithContext(ctx).First(&company, companyId).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &company, nil
}

// GetCompanyTimezone resolves the IANA timezone for a company, caching the
// lookup in redis since it is consulted on every upload.
func GetCompanyTimezone(ctx context.Context, db *gorm.DB, companyId int) string {
	cacheKey := utils.CompanyTimezoneCacheKey(companyId)
	if cached, found, err := config.GetRedisValue(cacheKey); err == nil && found && cached != "" {
		return cached
	}

	company, err := GetCompanyInfo(ctx, db, companyId)
	if err != nil || company.Timezone == "" {
		return utils.DefaultTimezone
	}

	_ = config.SetRedisValue(cacheKey, company.Timezone, 12*time.Hour)
	return company.Timezone
}
