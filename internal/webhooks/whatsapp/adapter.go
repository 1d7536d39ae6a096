package whatsapp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/pkg/enums"
)

var (
	ErrUnknownProvider  = errors.New("unknown webhook provider")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Adapter turns one provider's payloads into the canonical
// entry[].changes[].value shape.
type Adapter interface {
	Provider() enums.Provider
	Canonicalize(body []byte) ([]byte, error)
	// BillingPayload selects what the ledger stores and scans for a value.
	BillingPayload(body, value []byte) []byte
}

// Registry maps providers to adapters. Supporting another provider means
// registering one more adapter.
type Registry struct {
	mtx      sync.RWMutex
	adapters map[enums.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[enums.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry knows the meta and bsp shapes.
func DefaultRegistry() *Registry {
	return NewRegistry(MetaAdapter{}, BSPAdapter{})
}

func (r *Registry) Register(a Adapter) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.adapters[a.Provider()] = a
}

func (r *Registry) Adapter(provider enums.Provider) (Adapter, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	a, ok := r.adapters[provider]
	return a, ok
}

// Canonicalize detects the provider of body and runs its adapter.
func (r *Registry) Canonicalize(body []byte) (Envelope, error) {
	provider := DetectProvider(body)
	if provider == enums.ProviderUnknown {
		if len(body) == 0 || !gjson.ValidBytes(body) {
			return Envelope{Provider: provider, Raw: body}, ErrMalformedPayload
		}
		return Envelope{Provider: provider, Raw: body}, ErrUnknownProvider
	}
	adapter, ok := r.Adapter(provider)
	if !ok {
		return Envelope{Provider: provider, Raw: body}, fmt.Errorf("%w: no adapter for %s", ErrUnknownProvider, provider)
	}
	canonical, err := adapter.Canonicalize(body)
	if err != nil {
		return Envelope{Provider: provider, Raw: body}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, provider, err)
	}
	return parseCanonical(provider, canonical, body)
}

// MetaAdapter passes Cloud API payloads through; they are already canonical.
type MetaAdapter struct{}

func (MetaAdapter) Provider() enums.Provider { return enums.ProviderMeta }

func (MetaAdapter) Canonicalize(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPayload
	}
	return body, nil
}

func (MetaAdapter) BillingPayload(_, value []byte) []byte { return value }
