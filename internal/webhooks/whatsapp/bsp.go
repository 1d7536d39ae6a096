package whatsapp

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/angelmondragon/wabaledger/pkg/enums"
)

const bspEnvelopeTemplate = `{"object":"whatsapp_business_account","entry":[{"id":"","changes":[{"field":"messages","value":{}}]}]}`

// BSPAdapter lifts the flat, event-keyed BSP payload into a single
// entry/change. Top-level identifiers move into value.metadata and entry.id,
// a status event becomes statuses[0], and a message becomes messages[0].
type BSPAdapter struct{}

func (BSPAdapter) Provider() enums.Provider { return enums.ProviderBSP }

// BillingPayload returns the original body; pricing may sit anywhere in it.
func (BSPAdapter) BillingPayload(body, _ []byte) []byte { return body }

func (BSPAdapter) Canonicalize(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPayload
	}
	root := gjson.ParseBytes(body)
	b := &jsonBuilder{doc: []byte(`{"messaging_product":"whatsapp"}`)}

	if v := firstString(root, "phone_number_id", "metadata.phone_number_id"); v != "" {
		b.set("metadata.phone_number_id", v)
	}
	if v := firstString(root, "display_phone_number", "metadata.display_phone_number"); v != "" {
		b.set("metadata.display_phone_number", v)
	}

	event := root.Get("event").String()
	b.set("event", event)
	if strings.HasPrefix(event, templateEventPrefix) {
		b.setRaw("payload", root.Raw)
	}

	if isBSPStatus(root, event) && !strings.HasPrefix(event, templateEventPrefix) {
		b.setRaw("statuses.0", bspStatusItem(root))
	}

	switch messages := root.Get("messages"); {
	case messages.IsArray() && len(messages.Array()) > 0:
		b.setRaw("messages", messages.Raw)
	case root.Get("message").IsObject():
		b.setRaw("messages.0", root.Get("message").Raw)
	}

	if contacts := root.Get("contacts"); contacts.IsArray() {
		b.setRaw("contacts", contacts.Raw)
	} else if waID := firstString(root, "wa_id", "contact.wa_id"); waID != "" {
		b.set("contacts.0.wa_id", waID)
	}
	if b.err != nil {
		return nil, b.err
	}

	env := &jsonBuilder{doc: []byte(bspEnvelopeTemplate)}
	env.set("entry.0.id", firstString(root, "waba_id", "metadata.waba_id"))
	env.setRaw("entry.0.changes.0.value", string(b.doc))
	if env.err != nil {
		return nil, env.err
	}
	return env.doc, nil
}

func isBSPStatus(root gjson.Result, event string) bool {
	if strings.Contains(strings.ToLower(event), "status") {
		return true
	}
	return root.Get("status").Type == gjson.String
}

// bspStatusItem builds a Cloud API style status object from top-level fields.
func bspStatusItem(root gjson.Result) string {
	item := &jsonBuilder{doc: []byte(`{}`)}
	item.set("id", firstString(root, "id", "message_id", "wamid"))
	item.set("status", root.Get("status").String())
	if ts := root.Get("timestamp"); ts.Exists() {
		item.setRaw("timestamp", ts.Raw)
	}
	if recipient := firstString(root, "recipient_id", "wa_id", "destination"); recipient != "" {
		item.set("recipient_id", recipient)
	}
	for _, key := range []string{"conversation", "pricing", "errors"} {
		if v := root.Get(key); v.Exists() {
			item.setRaw(key, v.Raw)
		}
	}
	return string(item.doc)
}

// jsonBuilder threads sjson writes and keeps the first error.
type jsonBuilder struct {
	doc []byte
	err error
}

func (b *jsonBuilder) set(path string, value any) {
	if b.err != nil {
		return
	}
	b.doc, b.err = sjson.SetBytes(b.doc, path, value)
}

func (b *jsonBuilder) setRaw(path, raw string) {
	if b.err != nil {
		return
	}
	b.doc, b.err = sjson.SetRawBytes(b.doc, path, []byte(raw))
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(root.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}
