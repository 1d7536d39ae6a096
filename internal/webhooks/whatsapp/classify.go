package whatsapp

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/internal/tenants"
)

const templateEventPrefix = "template_"

// Kind is a bit set; one value can carry several classifications.
type Kind uint8

const (
	KindStatus Kind = 1 << iota
	KindTemplate
	KindMessage
)

func (k Kind) Has(other Kind) bool { return k&other != 0 }

// Classify inspects a canonical value object.
func Classify(value []byte) Kind {
	v := gjson.ParseBytes(value)
	var kind Kind
	event := v.Get("event").String()

	if statuses := v.Get("statuses"); statuses.IsArray() && len(statuses.Array()) > 0 {
		kind |= KindStatus
	} else if v.Get("status").Exists() || strings.Contains(strings.ToLower(event), "status") {
		kind |= KindStatus
	}
	if strings.HasPrefix(event, templateEventPrefix) {
		kind |= KindTemplate
	}
	if messages := v.Get("messages"); messages.IsArray() && len(messages.Array()) > 0 {
		kind |= KindMessage
	}
	return kind
}

// MessageClass splits inbound message items between collaborators.
type MessageClass string

const (
	MessageClick       MessageClass = "click"
	MessageInbound     MessageClass = "inbound"
	MessageUnsupported MessageClass = "unsupported"
)

// ClassifyMessage decides where one messages[] item goes.
func ClassifyMessage(item gjson.Result) MessageClass {
	switch item.Get("type").String() {
	case "button":
		return MessageClick
	case "interactive":
		if item.Get("interactive.button_reply").Exists() || item.Get("interactive.list_reply").Exists() {
			return MessageClick
		}
		return MessageUnsupported
	case "text", "image", "audio":
		return MessageInbound
	default:
		return MessageUnsupported
	}
}

// StatusItem is one delivery status callback inside a value.
type StatusItem struct {
	ProviderMessageID string
	Status            string
	Timestamp         string
	RecipientID       string
}

// StatusItems lists the status callbacks of a value. A value with a
// top-level status and no statuses array yields a single item.
func StatusItems(value []byte) []StatusItem {
	v := gjson.ParseBytes(value)
	var items []StatusItem
	v.Get("statuses").ForEach(func(_, s gjson.Result) bool {
		items = append(items, statusItemFrom(s))
		return true
	})
	if len(items) == 0 && v.Get("status").Type == gjson.String {
		items = append(items, statusItemFrom(v))
	}
	return items
}

func statusItemFrom(s gjson.Result) StatusItem {
	return StatusItem{
		ProviderMessageID: firstString(s, "id", "message_id"),
		Status:            s.Get("status").String(),
		Timestamp:         s.Get("timestamp").String(),
		RecipientID:       s.Get("recipient_id").String(),
	}
}

// HintsFor collects tenant hints from a value and its entry id.
func HintsFor(entryID string, value []byte) tenants.Hints {
	v := gjson.ParseBytes(value)
	hints := tenants.Hints{
		PhoneNumberID:      v.Get("metadata.phone_number_id").String(),
		DisplayPhoneNumber: v.Get("metadata.display_phone_number").String(),
		WabaID:             strings.TrimSpace(entryID),
	}
	if recipient := v.Get("statuses.0.recipient_id").String(); recipient != "" {
		hints.WaID = recipient
	} else {
		hints.WaID = v.Get("contacts.0.wa_id").String()
	}
	return hints
}
