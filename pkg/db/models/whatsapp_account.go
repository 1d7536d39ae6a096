package models

import (
	"time"

	"github.com/google/uuid"
)

const WhatsAppAccountsTable = "whatsapp_accounts"

// WhatsAppAccount is the tenant directory entry linking provider identifiers
// to a business.
type WhatsAppAccount struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BusinessID         uuid.UUID `gorm:"column:business_id;type:uuid;not null"`
	PhoneNumberID      *string   `gorm:"column:phone_number_id;type:text"`
	DisplayPhoneNumber *string   `gorm:"column:display_phone_number;type:text"`
	WabaID             *string   `gorm:"column:waba_id;type:text"`
	WaID               *string   `gorm:"column:wa_id;type:text"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (WhatsAppAccount) TableName() string { return WhatsAppAccountsTable }
