package whatsapp

import (
	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/pkg/enums"
)

// Envelope is a webhook delivery in canonical entry[].changes[].value form.
// Raw keeps the body exactly as the provider sent it.
type Envelope struct {
	Provider enums.Provider
	Object   string
	Entries  []Entry
	Raw      []byte
}

// Entry groups changes for one WhatsApp Business Account. ID is the WABA id.
type Entry struct {
	ID      string
	Changes []Change
}

// Change carries one canonical value object.
type Change struct {
	Field string
	Value []byte
}

// parseCanonical reads canonical JSON into an Envelope. Entries or changes
// that are not objects are dropped rather than failing the whole envelope.
func parseCanonical(provider enums.Provider, canonical, raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(canonical) {
		return Envelope{}, ErrMalformedPayload
	}
	root := gjson.ParseBytes(canonical)
	env := Envelope{
		Provider: provider,
		Object:   root.Get("object").String(),
		Raw:      raw,
	}
	root.Get("entry").ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		parsed := Entry{ID: entry.Get("id").String()}
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			value := change.Get("value")
			if !value.IsObject() {
				return true
			}
			parsed.Changes = append(parsed.Changes, Change{
				Field: change.Get("field").String(),
				Value: []byte(value.Raw),
			})
			return true
		})
		env.Entries = append(env.Entries, parsed)
		return true
	})
	return env, nil
}
