package models

import (
	"context"
	"strings"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/utils"
	"gorm.io/gorm"
)

type Account struct {
	ID          int         `gorm:"primary_key" json:"id"`
	CompanyId   int         `gorm:"index;not null;uniqueIndex:uix_accounts_company_name" json:"company_id" binding:"required"`
	Name        string      `gorm:"size:255;not null;uniqueIndex:uix_accounts_company_name" json:"name" binding:"required"`
	AccountType AccountType `gorm:"type:enum('BANK','TELECOM');not null" json:"account_type" binding:"required"`
	Description string      `gorm:"size:512" json:"description"`
	IsActive    *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name        string      `json:"name" binding:"required"`
	AccountType AccountType `json:"account_type" binding:"required"`
	Description string      `json:"description"`
}

// NormalizeAccountName collapses the label variants seen across report files
// and WhatsApp captions ("Stanbic ", "STANBIC bank") onto one map key.
func NormalizeAccountName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func CreateAccount(ctx context.Context, db *gorm.DB, companyId int, input *NewAccount) (*Account, error) {
	account := Account{
		CompanyId:   companyId,
		Name:        NormalizeAccountName(input.Name),
		AccountType: input.AccountType,
		Description: input.Description,
	}
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(utils.AccountMapCacheKey(companyId))
	return &account, nil
}

func ListAccounts(ctx context.Context, db *gorm.DB, companyId int) ([]Account, error) {
	var accounts []Account
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("name asc").
		Find(&accounts).Error
	return accounts, err
}

// GetAccountNameMap returns normalized name -> account id for a company,
// cached in redis. Every ingested row goes through this map.
func GetAccountNameMap(ctx context.Context, db *gorm.DB, companyId int) (map[string]int, error) {
	cacheKey := utils.AccountMapCacheKey(companyId)

	nameMap := map[string]int{}
	if found, err := config.GetRedisObject(cacheKey, &nameMap); err == nil && found {
		return nameMap, nil
	}

	accounts, err := ListAccounts(ctx, db, companyId)
	if err != nil {
		return nil, err
	}
	nameMap = make(map[string]int, len(accounts))
	for _, account := range accounts {
		nameMap[NormalizeAccountName(account.Name)] = account.ID
	}

	_ = config.SetRedisObject(cacheKey, nameMap, time.Hour)
	return nameMap, nil
}

// ResolveOrCreateAccount maps a reported label to an account id, creating a
// TELECOM placeholder when the label is unknown so a new float line on the
// report never blocks ingestion.
func ResolveOrCreateAccount(ctx context.Context, db *gorm.DB, companyId int, name string) (int, error) {
	normalized := NormalizeAccountName(name)
	if normalized == "" {
		return 0, utils.NewValidationError("account name is required")
	}

	nameMap, err := GetAccountNameMap(ctx, db, companyId)
	if err != nil {
		return 0, err
	}
	if id, ok := nameMap[normalized]; ok {
		return id, nil
	}

	account := Account{
		CompanyId:   companyId,
		Name:        normalized,
		AccountType: AccountTypeTelecom,
		Description: "auto-created from report upload",
	}
	if err := db.WithContext(ctx).
		Where("company_id = ? AND name = ?", companyId, normalized).
		FirstOrCreate(&account).Error; err != nil {
		return 0, err
	}
	_ = config.RemoveRedisKey(utils.AccountMapCacheKey(companyId))
	return account.ID, nil
}
