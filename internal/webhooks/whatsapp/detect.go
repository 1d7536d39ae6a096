package whatsapp

import (
	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/pkg/enums"
)

// MetaObject is the top-level object value of Cloud API webhooks.
const MetaObject = "whatsapp_business_account"

// DetectProvider infers the sending provider from the payload shape. Bodies
// that are not JSON, or match neither shape, are unknown.
func DetectProvider(body []byte) enums.Provider {
	if !gjson.ValidBytes(body) {
		return enums.ProviderUnknown
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return enums.ProviderUnknown
	}
	if isMetaShape(root) {
		return enums.ProviderMeta
	}
	if isBSPShape(root) {
		return enums.ProviderBSP
	}
	return enums.ProviderUnknown
}

func isMetaShape(root gjson.Result) bool {
	return root.Get("object").String() == MetaObject || root.Get("entry").IsArray()
}

func isBSPShape(root gjson.Result) bool {
	return root.Get("event").Exists() && !root.Get("entry").Exists()
}
