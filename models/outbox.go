package models

import (
	"context"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReconEventRecord is a transactional outbox row: written inside the same DB
// transaction as the reconciliation state change, published to Pub/Sub
// asynchronously by the outbox dispatcher after commit.
type ReconEventRecord struct {
	ID               int                 `gorm:"primary_key;index:idx_recon_outbox_dispatch,priority:3" json:"id"`
	CompanyId        int                 `gorm:"index;not null" json:"company_id"`
	ReconciliationId int                 `gorm:"index;not null" json:"reconciliation_id"`
	Date             time.Time           `gorm:"not null" json:"date"`
	Shift            ShiftType           `gorm:"type:enum('AM','PM');not null" json:"shift"`
	EventType        ReconEventType      `gorm:"size:64;not null" json:"event_type"`
	OccurredAt       time.Time           `gorm:"not null" json:"occurred_at"`
	PublishStatus    OutboxPublishStatus `gorm:"size:20;index;not null;default:'PENDING';index:idx_recon_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index;index:idx_recon_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishReconEvent stages a lifecycle event in the caller's transaction.
// No network I/O happens here.
func PublishReconEvent(ctx context.Context, tx *gorm.DB, record *Reconciliation, eventType ReconEventType) error {
	event := ReconEventRecord{
		CompanyId:        record.CompanyId,
		ReconciliationId: record.ID,
		Date:             record.Date,
		Shift:            record.Shift,
		EventType:        eventType,
		OccurredAt:       time.Now().UTC(),
		PublishStatus:    OutboxPublishStatusPending,
		CorrelationId:    correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&event).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ConvertToReconEventMessage maps an outbox row to the wire message the
// dispatcher publishes.
func ConvertToReconEventMessage(record ReconEventRecord) config.ReconEventMessage {
	return config.ReconEventMessage{
		ID:               record.ID,
		CompanyId:        record.CompanyId,
		ReconciliationId: record.ReconciliationId,
		Date:             record.Date.Format("2006-01-02"),
		Shift:            string(record.Shift),
		EventType:        string(record.EventType),
		OccurredAt:       record.OccurredAt,
		CorrelationId:    record.CorrelationId,
	}
}
