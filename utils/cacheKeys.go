package utils

import "fmt"

// Redis key builders. Keeping them together avoids two call sites drifting
// apart on the key format.

func SessionCacheKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func CompanyTimezoneCacheKey(companyId int) string {
	return fmt.Sprintf("company:%d:timezone", companyId)
}

func AccountMapCacheKey(companyId int) string {
	return fmt.Sprintf("company:%d:accounts", companyId)
}

func ReconciliationLockKey(companyId int, date string, shift string) string {
	return fmt.Sprintf("recon-lock:%d:%s:%s", companyId, date, shift)
}
