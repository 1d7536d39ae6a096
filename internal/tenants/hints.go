package tenants

import "strings"

// HintKind names a provider identifier that can map to a business. The value
// doubles as the whatsapp_accounts column holding it.
type HintKind string

const (
	HintPhoneNumberID      HintKind = "phone_number_id"
	HintWabaID             HintKind = "waba_id"
	HintDisplayPhoneNumber HintKind = "display_phone_number"
	HintWaID               HintKind = "wa_id"
)

// precedence is the fixed lookup order; the first hint that resolves wins.
var precedence = []HintKind{
	HintPhoneNumberID,
	HintWabaID,
	HintDisplayPhoneNumber,
	HintWaID,
}

// Hints carries the opaque identifiers a webhook exposes about its tenant.
type Hints struct {
	PhoneNumberID      string
	DisplayPhoneNumber string
	WabaID             string
	WaID               string
}

// IsEmpty reports whether no usable hint is present.
func (h Hints) IsEmpty() bool {
	for _, kind := range precedence {
		if h.value(kind) != "" {
			return false
		}
	}
	return true
}

func (h Hints) value(kind HintKind) string {
	switch kind {
	case HintPhoneNumberID:
		return strings.TrimSpace(h.PhoneNumberID)
	case HintWabaID:
		return strings.TrimSpace(h.WabaID)
	case HintDisplayPhoneNumber:
		return DigitsOnly(h.DisplayPhoneNumber)
	case HintWaID:
		return strings.TrimSpace(h.WaID)
	default:
		return ""
	}
}

// Fields renders the hints for structured logs.
func (h Hints) Fields() map[string]any {
	return map[string]any{
		"hint_phone_number_id":      h.PhoneNumberID,
		"hint_waba_id":              h.WabaID,
		"hint_display_phone_number": h.DisplayPhoneNumber,
		"hint_wa_id":                h.WaID,
	}
}

// DigitsOnly strips everything but ASCII digits, so "+1 (555) 010-0000"
// compares equal to "15550100000".
func DigitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
