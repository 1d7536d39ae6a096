package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/pkg/types"
)

// BSP payloads do not have a fixed shape for billing data, so pricing is
// found heuristically: every object keyed "pricing" (any case) anywhere in
// the tree is a candidate, and its identifiers are taken from the nearest
// enclosing objects. A pricing block with neither a message id nor a
// conversation id cannot be attributed and is skipped.

var messageIDKeys = map[string]struct{}{
	"id":                  {},
	"message_id":          {},
	"messageid":           {},
	"wamid":               {},
	"provider_message_id": {},
}

type pricingHit struct {
	path      string
	pricing   gjson.Result
	ancestors []gjson.Result // outermost first; the last one holds the pricing key
}

// anchored reports whether facts can be attributed to a message or
// conversation.
func (f billingFacts) anchored() bool {
	return f.providerMessageID != "" || f.conversationID != ""
}

// scanPricing walks root depth-first and returns every pricing block.
func scanPricing(root gjson.Result) []pricingHit {
	var hits []pricingHit
	walkPricing(root, "", nil, &hits)
	return hits
}

func walkPricing(node gjson.Result, path string, ancestors []gjson.Result, hits *[]pricingHit) {
	switch {
	case node.IsObject():
		chain := append(append([]gjson.Result(nil), ancestors...), node)
		node.ForEach(func(key, value gjson.Result) bool {
			childPath := joinPath(path, key.String())
			if strings.EqualFold(key.String(), "pricing") && value.IsObject() {
				*hits = append(*hits, pricingHit{path: childPath, pricing: value, ancestors: chain})
				return true
			}
			walkPricing(value, childPath, chain, hits)
			return true
		})
	case node.IsArray():
		i := 0
		node.ForEach(func(_, value gjson.Result) bool {
			walkPricing(value, joinPath(path, strconv.Itoa(i)), ancestors, hits)
			i++
			return true
		})
	}
}

// factsFromHit resolves identifiers outward from the pricing block. Each
// field takes the value from the nearest ancestor that exposes it.
func factsFromHit(hit pricingHit, now time.Time) billingFacts {
	var f billingFacts
	applyPricing(&f, hit.pricing)
	var timestamp string
	for i := len(hit.ancestors) - 1; i >= 0; i-- {
		obj := hit.ancestors[i]
		if f.providerMessageID == "" {
			f.providerMessageID = messageIDOf(obj)
		}
		if f.conversationID == "" {
			applyConversation(&f, conversationOf(obj))
		}
		if f.status == "" {
			if s := fieldFold(obj, "status"); s.Type == gjson.String {
				f.status = strings.ToLower(strings.TrimSpace(s.String()))
			}
		}
		if timestamp == "" {
			timestamp = fieldFold(obj, "timestamp").String()
		}
	}
	f.occurredAt = now.UTC()
	if t, ok := parseTimestamp(timestamp); ok {
		f.occurredAt = t
	}
	return f
}

func messageIDOf(obj gjson.Result) string {
	var id string
	obj.ForEach(func(key, value gjson.Result) bool {
		if _, ok := messageIDKeys[strings.ToLower(key.String())]; ok && value.Type == gjson.String {
			id = strings.TrimSpace(value.String())
		} else if value.Type == gjson.String && strings.HasPrefix(value.String(), "wamid.") {
			id = value.String()
		}
		return id == ""
	})
	return id
}

func conversationOf(obj gjson.Result) gjson.Result {
	if conv := fieldFold(obj, "conversation"); conv.Exists() {
		return conv
	}
	return fieldFold(obj, "conversation_id")
}

// fieldFold looks up a direct child key case-insensitively.
func fieldFold(obj gjson.Result, name string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(key, value gjson.Result) bool {
		if strings.EqualFold(key.String(), name) {
			out = value
			return false
		}
		return true
	})
	return out
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// parseTimestamp accepts unix seconds or RFC 3339.
func parseTimestamp(value string) (time.Time, bool) {
	if t, ok := types.ParseUnixSeconds(value); ok {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
