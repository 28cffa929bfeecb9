package utils

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ValidationError covers malformed input (unparseable spreadsheet, empty
// file, bad payload). Surfaced to the caller immediately, never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DuplicateContentError is raised when byte-identical content is re-ingested.
// A conflict, not a silent success.
type DuplicateContentError struct {
	Message string
}

func (e *DuplicateContentError) Error() string { return e.Message }

func NewDuplicateContentError(format string, args ...interface{}) error {
	return &DuplicateContentError{Message: fmt.Sprintf(format, args...)}
}

func IsDuplicateContentError(err error) bool {
	var de *DuplicateContentError
	return errors.As(err, &de)
}

// ConflictError covers workflow-state conflicts: re-running a finalized
// reconciliation, unique-constraint collisions. The caller must re-read state
// and decide; never retried automatically.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}

// IsDuplicateKeyError reports a MySQL unique-constraint violation (1062).
// Duplicate keys arbitrate concurrent creates, so callers inspect this to
// decide between coercing to an update and surfacing a conflict.
func IsDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
