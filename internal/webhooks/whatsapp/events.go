package whatsapp

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/wabaledger/pkg/types"
)

// TemplateEvent is a template lifecycle callback (template_* events).
type TemplateEvent struct {
	BusinessID string          `json:"business_id,omitempty"`
	Provider   string          `json:"provider"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

// MessageEvent is one inbound messages[] item, either a button/list click or
// a plain inbound message.
type MessageEvent struct {
	BusinessID    string          `json:"business_id,omitempty"`
	Provider      string          `json:"provider"`
	MessageID     string          `json:"message_id"`
	From          string          `json:"from"`
	Type          string          `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	Text          string          `json:"text,omitempty"`
	ReplyID       string          `json:"reply_id,omitempty"`
	ReplyTitle    string          `json:"reply_title,omitempty"`
	ButtonPayload string          `json:"button_payload,omitempty"`
	ContextID     string          `json:"context_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func templateEventFrom(provider, businessID string, value []byte) TemplateEvent {
	v := gjson.ParseBytes(value)
	payload := v.Get("payload")
	raw := json.RawMessage(value)
	if payload.IsObject() {
		raw = json.RawMessage(payload.Raw)
	}
	return TemplateEvent{
		BusinessID: businessID,
		Provider:   provider,
		Event:      v.Get("event").String(),
		Payload:    raw,
	}
}

func messageEventFrom(provider, businessID string, item gjson.Result, now time.Time) MessageEvent {
	evt := MessageEvent{
		BusinessID: businessID,
		Provider:   provider,
		MessageID:  item.Get("id").String(),
		From:       item.Get("from").String(),
		Type:       item.Get("type").String(),
		Timestamp:  types.UnixSecondsOr(item.Get("timestamp").String(), now),
		ContextID:  item.Get("context.id").String(),
		Payload:    json.RawMessage(item.Raw),
	}
	switch evt.Type {
	case "text":
		evt.Text = item.Get("text.body").String()
	case "image", "audio":
		evt.Text = item.Get(evt.Type + ".caption").String()
	case "button":
		evt.Text = item.Get("button.text").String()
		evt.ButtonPayload = item.Get("button.payload").String()
	case "interactive":
		reply := item.Get("interactive.button_reply")
		if !reply.Exists() {
			reply = item.Get("interactive.list_reply")
		}
		evt.ReplyID = reply.Get("id").String()
		evt.ReplyTitle = reply.Get("title").String()
	}
	return evt
}
