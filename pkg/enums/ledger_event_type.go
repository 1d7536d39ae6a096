package enums

import (
	"fmt"
	"strings"
)

// LedgerEventType is the event_type column of whatsapp_ledger_events.
type LedgerEventType string

const (
	LedgerEventSendResponse           LedgerEventType = "send_response"
	LedgerEventSent                   LedgerEventType = "sent"
	LedgerEventDelivered              LedgerEventType = "delivered"
	LedgerEventRead                   LedgerEventType = "read"
	LedgerEventFailed                 LedgerEventType = "failed"
	LedgerEventPricingUpdate          LedgerEventType = "pricing_update"
	LedgerEventUnknownProviderWebhook LedgerEventType = "unknown_provider_webhook"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventSendResponse,
	LedgerEventSent,
	LedgerEventDelivered,
	LedgerEventRead,
	LedgerEventFailed,
	LedgerEventPricingUpdate,
	LedgerEventUnknownProviderWebhook,
}

// IsValid reports whether the value matches a known ledger event type.
func (t LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}

// LedgerEventTypeForStatus records the provider status text, lower-cased, as
// the ledger event type. Text outside the delivery lifecycle is kept as-is.
func LedgerEventTypeForStatus(status string) LedgerEventType {
	return LedgerEventType(strings.ToLower(strings.TrimSpace(status)))
}
