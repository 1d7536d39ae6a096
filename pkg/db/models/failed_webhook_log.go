package models

import (
	"time"

	"github.com/google/uuid"
)

const FailedWebhookLogsTable = "failed_webhook_logs"

// FailedWebhookLog keeps the raw body of a webhook the pipeline could not
// accept or parse. Payload keeps the bytes as received, valid UTF-8 or not.
// Rows are purged by the retention sweep.
type FailedWebhookLog struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Provider  *string   `gorm:"column:provider;type:text"`
	Reason    string    `gorm:"column:reason;type:text;not null"`
	Payload   []byte    `gorm:"column:payload;type:bytea;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (FailedWebhookLog) TableName() string { return FailedWebhookLogsTable }
