package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/wabaledger/pkg/config"
	"github.com/angelmondragon/wabaledger/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

// Collaborator event types, carried in the event_type attribute.
const (
	EventTypeTemplate = "whatsapp_template_event"
	EventTypeClick    = "whatsapp_click"
	EventTypeInbound  = "whatsapp_inbound_message"
)

type TemplateEventHandler interface {
	HandleTemplateEvent(ctx context.Context, evt TemplateEvent) error
}

type ClickHandler interface {
	HandleClick(ctx context.Context, evt MessageEvent) error
}

type InboundHandler interface {
	HandleInbound(ctx context.Context, evt MessageEvent) error
}

// LogHandler satisfies every collaborator by logging the event. It is used
// when no forwarding topic is configured.
type LogHandler struct {
	logg *logger.Logger
}

func NewLogHandler(logg *logger.Logger) *LogHandler {
	return &LogHandler{logg: logg}
}

func (h *LogHandler) HandleTemplateEvent(ctx context.Context, evt TemplateEvent) error {
	h.log(ctx, EventTypeTemplate, evt.BusinessID, evt.Provider, map[string]any{"event": evt.Event})
	return nil
}

func (h *LogHandler) HandleClick(ctx context.Context, evt MessageEvent) error {
	h.log(ctx, EventTypeClick, evt.BusinessID, evt.Provider, map[string]any{
		"provider_message_id": evt.MessageID,
		"reply_id":            evt.ReplyID,
		"button_payload":      evt.ButtonPayload,
	})
	return nil
}

func (h *LogHandler) HandleInbound(ctx context.Context, evt MessageEvent) error {
	h.log(ctx, EventTypeInbound, evt.BusinessID, evt.Provider, map[string]any{
		"provider_message_id": evt.MessageID,
		"message_type":        evt.Type,
	})
	return nil
}

func (h *LogHandler) log(ctx context.Context, eventType, businessID, provider string, fields map[string]any) {
	if h == nil || h.logg == nil {
		return
	}
	fields["event_type"] = eventType
	fields["business_id"] = businessID
	fields["provider"] = provider
	h.logg.Info(h.logg.WithFields(ctx, fields), "whatsapp collaborator event")
}

type publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error)
}

// PubSubForwarder publishes collaborator events to their configured topics.
// Events whose topic is empty fall back to the log handler.
type PubSubForwarder struct {
	pub      publisher
	topics   config.PubSubConfig
	fallback *LogHandler
	logg     *logger.Logger
}

func NewPubSubForwarder(pub publisher, topics config.PubSubConfig, logg *logger.Logger) (*PubSubForwarder, error) {
	if pub == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubForwarder{
		pub:      pub,
		topics:   topics,
		fallback: NewLogHandler(logg),
		logg:     logg,
	}, nil
}

func (f *PubSubForwarder) HandleTemplateEvent(ctx context.Context, evt TemplateEvent) error {
	if strings.TrimSpace(f.topics.TemplateTopic) == "" {
		return f.fallback.HandleTemplateEvent(ctx, evt)
	}
	return f.forward(ctx, f.topics.TemplateTopic, EventTypeTemplate, evt.BusinessID, evt.Provider, evt)
}

func (f *PubSubForwarder) HandleClick(ctx context.Context, evt MessageEvent) error {
	if strings.TrimSpace(f.topics.ClickTopic) == "" {
		return f.fallback.HandleClick(ctx, evt)
	}
	return f.forward(ctx, f.topics.ClickTopic, EventTypeClick, evt.BusinessID, evt.Provider, evt)
}

func (f *PubSubForwarder) HandleInbound(ctx context.Context, evt MessageEvent) error {
	if strings.TrimSpace(f.topics.InboundTopic) == "" {
		return f.fallback.HandleInbound(ctx, evt)
	}
	return f.forward(ctx, f.topics.InboundTopic, EventTypeInbound, evt.BusinessID, evt.Provider, evt)
}

func (f *PubSubForwarder) forward(ctx context.Context, topic, eventType, businessID, provider string, evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	attrs := map[string]string{
		"event_type": eventType,
		"provider":   provider,
	}
	if businessID != "" {
		attrs["business_id"] = businessID
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	id, err := f.pub.Publish(publishCtx, topic, data, attrs)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, topic, err)
	}
	if f.logg != nil {
		f.logg.Debug(f.logg.WithFields(ctx, map[string]any{
			"topic":             topic,
			"event_type":        eventType,
			"pubsub_message_id": id,
		}), "whatsapp event forwarded")
	}
	return nil
}
