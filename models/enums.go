package models

import (
	"fmt"
)

type ShiftType string

const (
	ShiftTypeAM ShiftType = "AM"
	ShiftTypePM ShiftType = "PM"
)

func ParseShiftType(s string) (ShiftType, error) {
	switch s {
	case "AM", "am":
		return ShiftTypeAM, nil
	case "PM", "pm":
		return ShiftTypePM, nil
	default:
		return "", fmt.Errorf("invalid shift %q: must be AM or PM", s)
	}
}

func (t *ShiftType) UnmarshalJSON(b []byte) error {
	parsed, err := ParseShiftType(unquote(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type AccountType string

const (
	AccountTypeBank    AccountType = "BANK"
	AccountTypeTelecom AccountType = "TELECOM"
)

func ParseAccountType(s string) (AccountType, error) {
	switch s {
	case "BANK", "bank":
		return AccountTypeBank, nil
	case "TELECOM", "telecom":
		return AccountTypeTelecom, nil
	default:
		return "", fmt.Errorf("invalid account type %q: must be BANK or TELECOM", s)
	}
}

func (t *AccountType) UnmarshalJSON(b []byte) error {
	parsed, err := ParseAccountType(unquote(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type SourceType string

const (
	SourceTypeWhatsapp  SourceType = "whatsapp"
	SourceTypeMobileApp SourceType = "mobile_app"
	SourceTypeManual    SourceType = "manual"
	SourceTypeSystem    SourceType = "system"
)

func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceTypeWhatsapp, SourceTypeMobileApp, SourceTypeManual, SourceTypeSystem:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("invalid source %q", s)
	}
}

func (t *SourceType) UnmarshalJSON(b []byte) error {
	parsed, err := ParseSourceType(unquote(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CheckStatus is the tolerance verdict on a reconciliation. The engine only
// emits PASSED or FLAGGED; FAILED is kept for wire compatibility with rows
// written by older clients.
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "PASSED"
	CheckStatusFailed  CheckStatus = "FAILED"
	CheckStatusFlagged CheckStatus = "FLAGGED"
)

type ReconciliationStatus string

const (
	ReconciliationStatusDraft      ReconciliationStatus = "DRAFT"
	ReconciliationStatusCalculated ReconciliationStatus = "CALCULATED"
	ReconciliationStatusFinalized  ReconciliationStatus = "FINALIZED"
)

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

var reconciliationTransitions = map[ReconciliationStatus][]ReconciliationStatus{
	ReconciliationStatusDraft:      {ReconciliationStatusCalculated},
	ReconciliationStatusCalculated: {ReconciliationStatusCalculated, ReconciliationStatusFinalized},
	ReconciliationStatusFinalized:  {},
}

// A rejected record cannot be approved directly: recalculating it resets the
// approval to PENDING, and only PENDING can move to APPROVED.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalStatusPending:  {ApprovalStatusApproved, ApprovalStatusRejected},
	ApprovalStatusRejected: {ApprovalStatusRejected},
	ApprovalStatusApproved: {},
}

// ValidateReconciliationTransition enforces the lifecycle state machine in one
// place so callers never hand-roll status checks.
func ValidateReconciliationTransition(from, to ReconciliationStatus) error {
	for _, allowed := range reconciliationTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("cannot move reconciliation from %s to %s", from, to)
}

func ValidateApprovalTransition(from, to ApprovalStatus) error {
	for _, allowed := range approvalTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("cannot move approval from %s to %s", from, to)
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	UserRoleStaff   UserRole = "staff"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)

type ReconEventType string

const (
	ReconEventTypeCalculated ReconEventType = "reconciliation.calculated"
	ReconEventTypeApproved   ReconEventType = "reconciliation.approved"
	ReconEventTypeRejected   ReconEventType = "reconciliation.rejected"
)

func unquote(b []byte) string {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
