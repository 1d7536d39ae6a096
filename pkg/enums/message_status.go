package enums

import "strings"

// MessageStatus is the delivery state of an outbound WhatsApp message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

var messageStatusRanks = map[MessageStatus]int{
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
	MessageStatusFailed:    4,
}

// Rank orders statuses for non-regressing transitions. Failed is terminal,
// but only reachable before read. Unknown statuses rank 0.
func (s MessageStatus) Rank() int {
	return messageStatusRanks[s]
}

// IsKnown reports whether the status participates in rank ordering.
func (s MessageStatus) IsKnown() bool {
	return s.Rank() > 0
}

// NormalizeMessageStatus lower-cases known provider vocabulary onto the
// canonical set. Unknown text is returned trimmed but otherwise unchanged.
func NormalizeMessageStatus(raw string) MessageStatus {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "sent", "accepted", "enqueued":
		return MessageStatusSent
	case "delivered":
		return MessageStatusDelivered
	case "read", "seen":
		return MessageStatusRead
	case "failed", "undelivered", "error":
		return MessageStatusFailed
	default:
		return MessageStatus(trimmed)
	}
}
