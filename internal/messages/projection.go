package messages

import (
	"time"

	"github.com/shopspring/decimal"
)

// Projection holds the ledger-derived fields copied onto a message record.
// Nil fields are left untouched so a later, sparser event never clears data.
type Projection struct {
	Provider              *string
	ProviderMessageID     *string
	ConversationID        *string
	ConversationStartedAt *time.Time
	ConversationCategory  *string
	IsChargeable          *bool
	PriceAmount           decimal.NullDecimal
	PriceCurrency         *string
}

// Columns returns the column updates for every non-nil field.
func (p Projection) Columns() map[string]any {
	cols := map[string]any{}
	setString(cols, "provider", p.Provider)
	setString(cols, "provider_message_id", p.ProviderMessageID)
	setString(cols, "conversation_id", p.ConversationID)
	setString(cols, "conversation_category", p.ConversationCategory)
	setString(cols, "price_currency", p.PriceCurrency)
	if p.ConversationStartedAt != nil {
		cols["conversation_started_at"] = p.ConversationStartedAt.UTC()
	}
	if p.IsChargeable != nil {
		cols["is_chargeable"] = *p.IsChargeable
	}
	if p.PriceAmount.Valid {
		cols["price_amount"] = p.PriceAmount.Decimal
	}
	return cols
}

// IsEmpty reports whether applying the projection would change nothing.
func (p Projection) IsEmpty() bool {
	return len(p.Columns()) == 0
}

func setString(cols map[string]any, column string, value *string) {
	if value == nil || *value == "" {
		return
	}
	cols[column] = *value
}
