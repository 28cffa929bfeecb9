package utils

import (
	"context"
	"reflect"

	"github.com/Ntsinga/Zesha-App/config"
)

// check if id exists, using company_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, companyId int, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, companyId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check if ALL ids exist, using company_id in WHERE, return RecordNotFound error
func ValidateResourcesId[M any, ID comparable](ctx context.Context, companyId int, ids []ID) error {
	unqIds := UniqueSlice(ids)

	count, err := ResourceCountWhere[M](ctx, companyId, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, companyId int, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, companyId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, companyId, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return NewConflictError("duplicate %s", column)
	}
	return nil
}

// count records, using WHERE company_id = ? AND $condition
// company_id can be zero for admin user
func ResourceCountWhere[T any](ctx context.Context, companyId int, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if companyId != 0 {
		dbCtx.Where("company_id = ?", companyId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
