package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wabaledger/pkg/enums"
)

// LedgerEventsTable is the append-only WhatsApp billing ledger.
const LedgerEventsTable = "whatsapp_ledger_events"

// LedgerProviderMessageConstraint dedups rows that carry a provider message id.
const LedgerProviderMessageConstraint = "ux_whatsapp_ledger_events_provider_message"

// LedgerEvent records one billing-relevant observation for a message or
// conversation. Rows are never updated or deleted by the pipeline.
type LedgerEvent struct {
	ID                   uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID           uuid.UUID             `gorm:"column:business_id;type:uuid;not null"`
	MessageID            *uuid.UUID            `gorm:"column:message_id;type:uuid"`
	Provider             enums.Provider        `gorm:"column:provider;type:text;not null"`
	EventType            enums.LedgerEventType `gorm:"column:event_type;type:text;not null"`
	ProviderMessageID    *string               `gorm:"column:provider_message_id;type:text"`
	ConversationID       *string               `gorm:"column:conversation_id;type:text"`
	ConversationCategory *string               `gorm:"column:conversation_category;type:text"`
	IsChargeable         *bool                 `gorm:"column:is_chargeable"`
	PriceAmount          decimal.NullDecimal   `gorm:"column:price_amount;type:numeric(14,6)"`
	PriceCurrency        *string               `gorm:"column:price_currency;type:text"`
	Payload              json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	OccurredAt           time.Time             `gorm:"column:occurred_at;not null"`
	CreatedAt            time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEvent) TableName() string { return LedgerEventsTable }
