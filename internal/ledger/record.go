package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/pkg/enums"
	"github.com/angelmondragon/wabaledger/pkg/types"
)

// conversationWindow is how long a WhatsApp conversation stays open; the
// provider reports its expiry, so the start is derived from it.
const conversationWindow = 24 * time.Hour

// billingFacts are the fields pulled from one status or pricing block.
type billingFacts struct {
	providerMessageID     string
	status                string
	conversationID        string
	conversationStartedAt *time.Time
	category              string
	chargeable            *bool
	amount                decimal.NullDecimal
	currency              string
	occurredAt            time.Time
	hasPricing            bool
}

// rowTypes lists the ledger rows a set of facts produces: the status row when
// a status is present and a pricing_update row when any pricing field is.
func (f billingFacts) rowTypes() []enums.LedgerEventType {
	var out []enums.LedgerEventType
	if strings.TrimSpace(f.status) != "" {
		out = append(out, enums.LedgerEventTypeForStatus(f.status))
	}
	if f.hasPricing {
		out = append(out, enums.LedgerEventPricingUpdate)
	}
	return out
}

// metaStatusFacts extracts facts from every Cloud API status object in raw.
// raw may be a full envelope, a change value, or a single status object.
func metaStatusFacts(raw []byte, now time.Time) []billingFacts {
	root := gjson.ParseBytes(raw)
	var statuses []gjson.Result
	switch {
	case root.Get("entry").IsArray():
		root.Get("entry.#.changes.#.value.statuses").ForEach(func(_, perEntry gjson.Result) bool {
			perEntry.ForEach(func(_, perChange gjson.Result) bool {
				statuses = append(statuses, perChange.Array()...)
				return true
			})
			return true
		})
	case root.Get("statuses").IsArray():
		statuses = root.Get("statuses").Array()
	case root.Get("status").Type == gjson.String:
		statuses = []gjson.Result{root}
	}

	facts := make([]billingFacts, 0, len(statuses))
	for _, s := range statuses {
		f := billingFacts{
			providerMessageID: strings.TrimSpace(s.Get("id").String()),
			status:            strings.ToLower(strings.TrimSpace(s.Get("status").String())),
			occurredAt:        types.UnixSecondsOr(s.Get("timestamp").String(), now),
		}
		applyConversation(&f, s.Get("conversation"))
		applyPricing(&f, s.Get("pricing"))
		if f.category == "" {
			f.category = s.Get("conversation.origin.type").String()
		}
		facts = append(facts, f)
	}
	return facts
}

func applyConversation(f *billingFacts, conv gjson.Result) {
	if !conv.Exists() {
		return
	}
	if conv.Type == gjson.String {
		f.conversationID = strings.TrimSpace(conv.String())
		return
	}
	f.conversationID = strings.TrimSpace(fieldFold(conv, "id").String())
	if expiry, ok := types.ParseUnixSeconds(fieldFold(conv, "expiration_timestamp").String()); ok {
		started := expiry.Add(-conversationWindow)
		f.conversationStartedAt = &started
	}
}

// applyPricing reads pricing keys case-insensitively; BSPs vary the casing.
func applyPricing(f *billingFacts, pricing gjson.Result) {
	if !pricing.IsObject() {
		return
	}
	if category := fieldFold(pricing, "category"); category.Exists() {
		f.category = category.String()
		f.hasPricing = true
	}
	if billable := fieldFold(pricing, "billable"); billable.Exists() {
		v := billable.Bool()
		f.chargeable = &v
		f.hasPricing = true
	}
	if amount := fieldFold(pricing, "amount"); amount.Exists() {
		f.hasPricing = true
		if d, ok := parseAmount(amount); ok {
			f.amount = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	if currency := fieldFold(pricing, "currency"); currency.Exists() {
		f.currency = strings.ToUpper(strings.TrimSpace(currency.String()))
		f.hasPricing = true
	}
	if fieldFold(pricing, "pricing_model").Exists() {
		f.hasPricing = true
	}
}

// parseAmount keeps the literal digits of numeric amounts so no float
// rounding creeps into the ledger.
func parseAmount(v gjson.Result) (decimal.Decimal, bool) {
	var text string
	switch v.Type {
	case gjson.Number:
		text = v.Raw
	case gjson.String:
		text = strings.TrimSpace(v.Str)
	default:
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
