package enums

import "strings"

// Provider names the WhatsApp Business API provider a payload came from.
// Values outside the known set are preserved verbatim and treated as unknown.
type Provider string

const (
	ProviderMeta    Provider = "meta"
	ProviderBSP     Provider = "bsp"
	ProviderUnknown Provider = "unknown"
)

var knownProviders = []Provider{ProviderMeta, ProviderBSP}

// IsKnown reports whether the provider has a dedicated parsing path.
func (p Provider) IsKnown() bool {
	for _, candidate := range knownProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvider lower-cases and trims raw input. Unrecognised names are kept
// as-is so they can be recorded on audit rows.
func ParseProvider(value string) Provider {
	trimmed := strings.TrimSpace(value)
	normalized := Provider(strings.ToLower(trimmed))
	if normalized.IsKnown() {
		return normalized
	}
	return Provider(trimmed)
}

func (p Provider) String() string {
	return string(p)
}
