package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const MessagesTable = "whatsapp_messages"

// Message is the outbound message record owned by the send path. The ingest
// pipeline only fills provider, conversation, pricing and delivery columns.
type Message struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID            uuid.UUID           `gorm:"column:business_id;type:uuid;not null"`
	Provider              *string             `gorm:"column:provider;type:text"`
	ProviderMessageID     *string             `gorm:"column:provider_message_id;type:text"`
	ConversationID        *string             `gorm:"column:conversation_id;type:text"`
	ConversationStartedAt *time.Time          `gorm:"column:conversation_started_at"`
	ConversationCategory  *string             `gorm:"column:conversation_category;type:text"`
	IsChargeable          *bool               `gorm:"column:is_chargeable"`
	PriceAmount           decimal.NullDecimal `gorm:"column:price_amount;type:numeric(14,6)"`
	PriceCurrency         *string             `gorm:"column:price_currency;type:text"`
	Status                *string             `gorm:"column:status;type:text"`
	StatusRank            int                 `gorm:"column:status_rank;not null;default:0"`
	SentAt                *time.Time          `gorm:"column:sent_at"`
	DeliveredAt           *time.Time          `gorm:"column:delivered_at"`
	ReadAt                *time.Time          `gorm:"column:read_at"`
	FailedAt              *time.Time          `gorm:"column:failed_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Message) TableName() string { return MessagesTable }

const SendLogsTable = "whatsapp_send_logs"

// SendLog maps a provider message id back to the internal message id. Written
// by the send path, read here as a fallback for status identity.
type SendLog struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	MessageID         uuid.UUID `gorm:"column:message_id;type:uuid;not null"`
	ProviderMessageID string    `gorm:"column:provider_message_id;type:text;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SendLog) TableName() string { return SendLogsTable }
