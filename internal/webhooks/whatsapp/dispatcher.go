package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"

	"github.com/angelmondragon/wabaledger/internal/failedwebhooks"
	"github.com/angelmondragon/wabaledger/internal/ingress"
	"github.com/angelmondragon/wabaledger/internal/ledger"
	"github.com/angelmondragon/wabaledger/internal/tenants"
	"github.com/angelmondragon/wabaledger/pkg/enums"
	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

// Dispatch stages, used as the failure metric label.
const (
	stageChange     = "change"
	stageLedger     = "ledger"
	stageStatusItem = "status_item"
	stageTemplate   = "template"
	stageMessage    = "message"
)

type LedgerIngester interface {
	IngestWebhook(ctx context.Context, businessID uuid.UUID, provider string, raw []byte) ledger.IngestResult
}

type StatusApplier interface {
	Apply(ctx context.Context, providerMessageID, rawStatus, unixTimestamp string) error
}

type FailedRecorder interface {
	Record(ctx context.Context, provider, reason string, payload []byte) error
}

type DispatcherParams struct {
	Registry  *Registry
	Resolver  tenants.Resolver
	Ledger    LedgerIngester
	Statuses  StatusApplier
	Templates TemplateEventHandler
	Clicks    ClickHandler
	Inbound   InboundHandler
	Failed    FailedRecorder
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
}

// Dispatcher routes one canonical envelope to billing, status and the
// collaborator handlers. Every change and item is processed in isolation; a
// failing or panicking step is logged and its siblings still run.
type Dispatcher struct {
	registry  *Registry
	resolver  tenants.Resolver
	ledger    LedgerIngester
	statuses  StatusApplier
	templates TemplateEventHandler
	clicks    ClickHandler
	inbound   InboundHandler
	failed    FailedRecorder
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Resolver == nil {
		return nil, fmt.Errorf("tenant resolver required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger ingester required")
	}
	if params.Statuses == nil {
		return nil, fmt.Errorf("status applier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	d := &Dispatcher{
		registry:  params.Registry,
		resolver:  params.Resolver,
		ledger:    params.Ledger,
		statuses:  params.Statuses,
		templates: params.Templates,
		clicks:    params.Clicks,
		inbound:   params.Inbound,
		failed:    params.Failed,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}
	if d.registry == nil {
		d.registry = DefaultRegistry()
	}
	fallback := NewLogHandler(params.Logger)
	if d.templates == nil {
		d.templates = fallback
	}
	if d.clicks == nil {
		d.clicks = fallback
	}
	if d.inbound == nil {
		d.inbound = fallback
	}
	return d, nil
}

// Dispatch processes env. The returned error summarizes contained failures
// for logging; it never means the envelope should be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, env ingress.Envelope) error {
	ctx = d.logg.WithFields(ctx, map[string]any{"envelope_id": env.ID})

	canonical, err := d.registry.Canonicalize(env.Body)
	if err != nil {
		reason := failedwebhooks.ReasonMalformedJSON
		if errors.Is(err, ErrUnknownProvider) {
			reason = failedwebhooks.ReasonUnknownProvider
		}
		d.logg.Warn(d.logg.WithFields(ctx, map[string]any{"reason": reason, "error": err.Error()}), "whatsapp envelope dropped")
		d.metrics.IncSkipped(reason)
		d.recordFailed(ctx, canonical.Provider, reason, env.Body)
		return err
	}

	provider := string(canonical.Provider)
	ctx = d.logg.WithProvider(ctx, provider)
	d.metrics.IncDispatched(provider)
	adapter, _ := d.registry.Adapter(canonical.Provider)

	var sum summary
	for _, entry := range canonical.Entries {
		for _, change := range entry.Changes {
			entryID, value := entry.ID, change.Value
			sum.add(d.guard(ctx, stageChange, func() error {
				d.dispatchValue(ctx, canonical, adapter, entryID, value, &sum)
				return nil
			}))
		}
	}
	return sum.err
}

func (d *Dispatcher) dispatchValue(ctx context.Context, env Envelope, adapter Adapter, entryID string, value []byte, sum *summary) {
	kind := Classify(value)
	if kind == 0 {
		d.logg.Debug(ctx, "whatsapp value has nothing to route")
		return
	}

	tenant := &tenantLookup{d: d, entryID: entryID, value: value}
	provider := string(env.Provider)

	if kind.Has(KindStatus) {
		d.routeStatuses(ctx, env, adapter, tenant, value, sum)
	}
	if kind.Has(KindTemplate) {
		sum.add(d.guard(ctx, stageTemplate, func() error {
			evt := templateEventFrom(provider, tenant.businessIDString(ctx), value)
			return d.templates.HandleTemplateEvent(ctx, evt)
		}))
	}
	if kind.Has(KindMessage) {
		gjson.GetBytes(value, "messages").ForEach(func(_, item gjson.Result) bool {
			sum.add(d.guard(ctx, stageMessage, func() error {
				return d.routeMessage(ctx, provider, tenant, item)
			}))
			return true
		})
	}
}

func (d *Dispatcher) routeStatuses(ctx context.Context, env Envelope, adapter Adapter, tenant *tenantLookup, value []byte, sum *summary) {
	sum.add(d.guard(ctx, stageLedger, func() error {
		businessID, ok := tenant.resolve(ctx)
		if !ok {
			d.metrics.IncSkipped("unknown_tenant")
			d.logg.Warn(d.logg.WithFields(ctx, tenant.hints().Fields()), "unknown tenant, skipping billing")
			return nil
		}
		payload := value
		if adapter != nil {
			payload = adapter.BillingPayload(env.Raw, value)
		}
		billingCtx := d.logg.WithBusinessID(ctx, businessID.String())
		res := d.ledger.IngestWebhook(billingCtx, businessID, string(env.Provider), payload)
		d.logg.Debug(d.logg.WithFields(billingCtx, map[string]any{
			"rows_written":    res.Written,
			"rows_duplicate":  res.Duplicates,
			"records_skipped": res.Skipped,
		}), "ledger ingest finished")
		return nil
	}))

	for _, item := range StatusItems(value) {
		sum.add(d.guard(ctx, stageStatusItem, func() error {
			if item.ProviderMessageID == "" {
				d.logg.Warn(ctx, "status item without provider message id skipped")
				return nil
			}
			itemCtx := d.logg.WithFields(ctx, map[string]any{
				"provider_message_id": item.ProviderMessageID,
				"status":              item.Status,
			})
			return d.statuses.Apply(itemCtx, item.ProviderMessageID, item.Status, item.Timestamp)
		}))
	}
}

func (d *Dispatcher) routeMessage(ctx context.Context, provider string, tenant *tenantLookup, item gjson.Result) error {
	class := ClassifyMessage(item)
	if class == MessageUnsupported {
		d.logg.Info(d.logg.WithFields(ctx, map[string]any{
			"provider_message_id": item.Get("id").String(),
			"message_type":        item.Get("type").String(),
		}), "unsupported message type skipped")
		return nil
	}
	evt := messageEventFrom(provider, tenant.businessIDString(ctx), item, d.now())
	if class == MessageClick {
		return d.clicks.HandleClick(ctx, evt)
	}
	return d.inbound.HandleInbound(ctx, evt)
}

// guard runs fn, turning a panic into an error. Errors are logged and
// counted here; callers only collect them.
func (d *Dispatcher) guard(ctx context.Context, stage string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: panic: %v", stage, rec)
		}
		if err != nil {
			d.metrics.IncItemFailure(stage)
			d.logg.Error(d.logg.WithField(ctx, "stage", stage), "whatsapp dispatch step failed", err)
		}
	}()
	return fn()
}

func (d *Dispatcher) recordFailed(ctx context.Context, provider enums.Provider, reason string, body []byte) {
	if d.failed == nil {
		return
	}
	name := ""
	if provider != enums.ProviderUnknown {
		name = string(provider)
	}
	if err := d.failed.Record(ctx, name, reason, body); err != nil {
		d.logg.Error(ctx, "failed to record failed webhook", err)
	}
}

// tenantLookup resolves a value's business at most once, on first use.
type tenantLookup struct {
	d          *Dispatcher
	entryID    string
	value      []byte
	done       bool
	businessID uuid.UUID
	ok         bool
}

func (t *tenantLookup) hints() tenants.Hints {
	return HintsFor(t.entryID, t.value)
}

func (t *tenantLookup) resolve(ctx context.Context) (uuid.UUID, bool) {
	if t.done {
		return t.businessID, t.ok
	}
	t.done = true
	hints := t.hints()
	if hints.IsEmpty() {
		return uuid.Nil, false
	}
	businessID, ok, err := t.d.resolver.Resolve(ctx, hints)
	if err != nil && !ok {
		t.d.logg.Error(t.d.logg.WithFields(ctx, hints.Fields()), "tenant resolution failed", err)
	}
	t.businessID, t.ok = businessID, ok
	return businessID, ok
}

func (t *tenantLookup) businessIDString(ctx context.Context) string {
	if id, ok := t.resolve(ctx); ok {
		return id.String()
	}
	return ""
}

type summary struct {
	err error
}

func (s *summary) add(err error) {
	s.err = multierr.Append(s.err, err)
}
