package models

import (
	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/utils"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&CompanyInfo{}, &Account{}, &User{},
		&SubmittedBalance{}, &Commission{}, &CashCount{}, &ReportedTotal{},
		&Reconciliation{}, &Expense{},
		&ReconEventRecord{},
	)
	utils.ErrorPanic(err)
}
