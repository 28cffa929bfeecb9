// seed-admin creates or updates the platform admin user (username: zeshaAdmin).
// Admin users carry role 'admin' and bypass tenant scoping on internal ops routes.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "zeshaAdmin"
	adminPassword = "Z3$haAdmin"
	adminName     = "Zesha Admin"
	seedCompany   = "Zesha HQ"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	// Tenant scoping needs a company id in context; attach the first company,
	// seeding one when the database is empty.
	var company models.CompanyInfo
	err := db.WithContext(ctx).Model(&models.CompanyInfo{}).Select("id").First(&company).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup company: %v\n", err)
			os.Exit(1)
		}
		company = models.CompanyInfo{Name: seedCompany}
		if err := db.WithContext(ctx).Create(&company).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed company: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created company %q (id=%d)\n", seedCompany, company.ID)
	}

	ctx = utils.SetCompanyIdInContext(ctx, company.ID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetUserNameInContext(ctx, adminName)
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			CompanyId: company.ID,
			Username:  adminUsername,
			Name:      adminName,
			Password:  hashed,
			Role:      models.UserRoleAdmin,
			IsActive:  utils.NilIfEmpty(true),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (role=admin)\n", adminUsername)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password":   hashed,
		"name":       adminName,
		"is_active":  true,
		"company_id": company.ID,
		"role":       models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: username=%q (role=admin)\n", adminUsername)
}
