package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/internal/messages"
	"github.com/angelmondragon/wabaledger/internal/tenants"
	"github.com/angelmondragon/wabaledger/pkg/db/models"
	"github.com/angelmondragon/wabaledger/pkg/enums"
	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

// Skip reasons reported on the ledger skipped metric.
const (
	skipUnknownBusiness     = "unknown_business"
	skipInvalidPayload      = "invalid_payload"
	skipUnanchoredPricing   = "unanchored_pricing"
	skipUnanchoredStatus    = "unanchored_status"
	skipWriteFailed         = "write_failed"
	skipLookupFailed        = "lookup_failed"
	skipBusinessCheckFailed = "business_check_failed"
)

type messageStore interface {
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
	FindByConversationID(ctx context.Context, businessID uuid.UUID, conversationID string) (*models.Message, error)
	ApplyProjection(ctx context.Context, id uuid.UUID, p messages.Projection) (bool, error)
}

// IngestResult counts what one ingest call did.
type IngestResult struct {
	Written    int
	Duplicates int
	Skipped    int
}

type ServiceParams struct {
	Repository Repository
	Messages   messageStore
	Businesses tenants.BusinessChecker
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
}

// Service appends billing ledger rows from send responses and provider
// webhooks and keeps the message projection in sync. Failures are logged and
// contained; callers never see an error.
type Service struct {
	repo       Repository
	messages   messageStore
	businesses tenants.BusinessChecker
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires a ledger service with the provided collaborators.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Messages == nil {
		return nil, fmt.Errorf("messages repository required")
	}
	if params.Businesses == nil {
		return nil, fmt.Errorf("business checker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:       params.Repository,
		messages:   params.Messages,
		businesses: params.Businesses,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// IngestFromSendResponse records the provider's reply to a send request and
// stamps the provider message id on the message record.
func (s *Service) IngestFromSendResponse(ctx context.Context, businessID, messageID uuid.UUID, provider string, raw []byte) (res IngestResult) {
	p := enums.ParseProvider(provider)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"business_id": businessID.String(),
		"provider":    p.String(),
		"message_id":  messageID.String(),
	})
	defer s.contain(ctx, &res)

	if !s.knownBusiness(ctx, businessID, &res) {
		return res
	}
	if !gjson.ValidBytes(raw) {
		s.skip(ctx, &res, skipInvalidPayload, "send response is not valid json")
		return res
	}
	providerMessageID := gjson.GetBytes(raw, "messages.0.id").String()
	if providerMessageID == "" {
		providerMessageID = gjson.GetBytes(raw, "id").String()
	}
	providerName := p.String()
	projection := messages.Projection{Provider: &providerName}
	if providerMessageID != "" {
		ctx = s.logg.WithField(ctx, "provider_message_id", providerMessageID)
		projection.ProviderMessageID = &providerMessageID
	} else {
		// rejected sends still get an audit row, deduped per message
		s.logg.Warn(ctx, "send response without provider message id")
		exists, err := s.repo.ExistsForMessage(ctx, businessID, providerName, enums.LedgerEventSendResponse, messageID)
		if err != nil {
			s.fail(ctx, &res, skipWriteFailed, "ledger message probe failed", err)
			return res
		}
		if exists {
			s.duplicate(ctx, &res, &models.LedgerEvent{Provider: p, EventType: enums.LedgerEventSendResponse})
			return res
		}
	}

	if _, err := s.messages.ApplyProjection(ctx, messageID, projection); err != nil {
		s.logg.Error(ctx, "failed to stamp provider message id", err)
	}

	row := &models.LedgerEvent{
		ID:                uuid.New(),
		BusinessID:        businessID,
		MessageID:         &messageID,
		Provider:          p,
		EventType:         enums.LedgerEventSendResponse,
		ProviderMessageID: optional(providerMessageID),
		Payload:           json.RawMessage(raw),
		OccurredAt:        s.now().UTC(),
	}
	s.insert(ctx, row, &res)
	return res
}

// IngestWebhook records the billing rows a provider webhook carries. Unknown
// providers get a single audit row holding the payload.
func (s *Service) IngestWebhook(ctx context.Context, businessID uuid.UUID, provider string, raw []byte) (res IngestResult) {
	p := enums.ParseProvider(provider)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"business_id": businessID.String(),
		"provider":    p.String(),
	})
	defer s.contain(ctx, &res)

	if !s.knownBusiness(ctx, businessID, &res) {
		return res
	}
	if !p.IsKnown() {
		s.recordUnknownProvider(ctx, businessID, p, raw, &res)
		return res
	}
	if !gjson.ValidBytes(raw) {
		s.skip(ctx, &res, skipInvalidPayload, "webhook payload is not valid json")
		return res
	}

	now := s.now()
	switch p {
	case enums.ProviderMeta:
		for _, f := range metaStatusFacts(raw, now) {
			if !f.anchored() {
				s.skip(ctx, &res, skipUnanchoredStatus, "status without message or conversation id")
				continue
			}
			s.recordFacts(ctx, businessID, p, f, raw, &res)
		}
	case enums.ProviderBSP:
		hits := scanPricing(gjson.ParseBytes(raw))
		if len(hits) == 0 {
			s.logg.Debug(ctx, "no pricing block in bsp payload")
		}
		for _, hit := range hits {
			f := factsFromHit(hit, now)
			if !f.anchored() {
				s.skip(s.logg.WithField(ctx, "pricing_path", hit.path), &res, skipUnanchoredPricing, "pricing block without usable anchor skipped")
				continue
			}
			s.recordFacts(ctx, businessID, p, f, raw, &res)
		}
	}
	return res
}

func (s *Service) recordFacts(ctx context.Context, businessID uuid.UUID, provider enums.Provider, f billingFacts, raw []byte, res *IngestResult) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"provider_message_id": f.providerMessageID,
		"conversation_id":     f.conversationID,
	})
	msg := s.locateMessage(ctx, businessID, f)

	for _, eventType := range f.rowTypes() {
		row := &models.LedgerEvent{
			ID:                   uuid.New(),
			BusinessID:           businessID,
			Provider:             provider,
			EventType:            eventType,
			ProviderMessageID:    optional(f.providerMessageID),
			ConversationID:       optional(f.conversationID),
			ConversationCategory: optional(f.category),
			IsChargeable:         f.chargeable,
			PriceAmount:          f.amount,
			PriceCurrency:        optional(f.currency),
			Payload:              json.RawMessage(raw),
			OccurredAt:           f.occurredAt,
		}
		if msg != nil {
			row.MessageID = &msg.ID
		}
		rowCtx := s.logg.WithField(ctx, "event_type", string(eventType))

		if row.ProviderMessageID == nil {
			exists, err := s.repo.ExistsForConversation(rowCtx, businessID, provider.String(), eventType, f.conversationID)
			if err != nil {
				s.fail(rowCtx, res, skipWriteFailed, "ledger conversation probe failed", err)
				continue
			}
			if exists {
				s.duplicate(rowCtx, res, row)
				continue
			}
		}
		if !s.insert(rowCtx, row, res) {
			continue
		}
		if msg != nil {
			s.project(rowCtx, msg, provider, f)
		} else {
			s.logg.Debug(rowCtx, "no message record for ledger row")
		}
	}
}

func (s *Service) recordUnknownProvider(ctx context.Context, businessID uuid.UUID, provider enums.Provider, raw []byte, res *IngestResult) {
	payload := json.RawMessage(raw)
	if !gjson.ValidBytes(raw) {
		// jsonb needs valid json; keep the bytes as a json string.
		encoded, _ := json.Marshal(string(raw))
		payload = encoded
	}
	row := &models.LedgerEvent{
		ID:         uuid.New(),
		BusinessID: businessID,
		Provider:   provider,
		EventType:  enums.LedgerEventUnknownProviderWebhook,
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	}
	s.logg.Warn(ctx, "webhook from unknown provider recorded for audit")
	s.insert(ctx, row, res)
}

// insert appends row and reports whether it is new.
func (s *Service) insert(ctx context.Context, row *models.LedgerEvent, res *IngestResult) bool {
	inserted, err := s.repo.Insert(ctx, row)
	if err != nil {
		s.fail(ctx, res, skipWriteFailed, "ledger insert failed", err)
		return false
	}
	if !inserted {
		s.duplicate(ctx, res, row)
		return false
	}
	res.Written++
	s.metrics.IncWritten(row.Provider.String(), string(row.EventType))
	return true
}

func (s *Service) duplicate(ctx context.Context, res *IngestResult, row *models.LedgerEvent) {
	res.Duplicates++
	s.metrics.IncDuplicate(row.Provider.String(), string(row.EventType))
	s.logg.Debug(ctx, "duplicate ledger event ignored")
}

// locateMessage finds the message a ledger row belongs to: by provider
// message id first, then the most recent message in the conversation.
func (s *Service) locateMessage(ctx context.Context, businessID uuid.UUID, f billingFacts) *models.Message {
	if f.providerMessageID != "" {
		msg, err := s.messages.FindByProviderMessageID(ctx, f.providerMessageID)
		if err != nil {
			s.logg.Error(ctx, "message lookup by provider id failed", err)
			s.metrics.IncSkipped(skipLookupFailed)
		} else if msg != nil {
			return msg
		}
	}
	if f.conversationID != "" {
		msg, err := s.messages.FindByConversationID(ctx, businessID, f.conversationID)
		if err != nil {
			s.logg.Error(ctx, "message lookup by conversation failed", err)
			s.metrics.IncSkipped(skipLookupFailed)
			return nil
		}
		return msg
	}
	return nil
}

func (s *Service) project(ctx context.Context, msg *models.Message, provider enums.Provider, f billingFacts) {
	providerName := provider.String()
	projection := messages.Projection{
		Provider:              &providerName,
		ConversationID:        optional(f.conversationID),
		ConversationStartedAt: f.conversationStartedAt,
		ConversationCategory:  optional(f.category),
		IsChargeable:          f.chargeable,
		PriceAmount:           f.amount,
		PriceCurrency:         optional(f.currency),
	}
	// a conversation match must not take another message's provider id
	if msg.ProviderMessageID != nil && *msg.ProviderMessageID == f.providerMessageID {
		projection.ProviderMessageID = optional(f.providerMessageID)
	}
	if projection.IsEmpty() {
		return
	}
	if _, err := s.messages.ApplyProjection(ctx, msg.ID, projection); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "message_id", msg.ID.String()), "message projection update failed", err)
	}
}

func (s *Service) knownBusiness(ctx context.Context, businessID uuid.UUID, res *IngestResult) bool {
	if businessID == uuid.Nil {
		s.skip(ctx, res, skipUnknownBusiness, "ledger ingest without business id")
		return false
	}
	ok, err := s.businesses.BusinessExists(ctx, businessID)
	if err != nil {
		s.fail(ctx, res, skipBusinessCheckFailed, "business lookup failed", err)
		return false
	}
	if !ok {
		s.skip(ctx, res, skipUnknownBusiness, "unknown business, ledger ingest skipped")
		return false
	}
	return true
}

func (s *Service) skip(ctx context.Context, res *IngestResult, reason, msg string) {
	res.Skipped++
	s.metrics.IncSkipped(reason)
	s.logg.Warn(s.logg.WithField(ctx, "skip_reason", reason), msg)
}

func (s *Service) fail(ctx context.Context, res *IngestResult, reason, msg string, err error) {
	res.Skipped++
	s.metrics.IncSkipped(reason)
	s.logg.Error(ctx, msg, err)
}

// contain turns a panic inside an ingest call into a logged skip.
func (s *Service) contain(ctx context.Context, res *IngestResult) {
	if rec := recover(); rec != nil {
		s.fail(ctx, res, skipWriteFailed, "ledger ingest panicked", fmt.Errorf("panic: %v", rec))
	}
}
