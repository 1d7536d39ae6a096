package statuses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
	"github.com/angelmondragon/wabaledger/pkg/enums"
	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/types"
)

// StatusWriter persists a status transition. Implementations must be
// idempotent per (message, status) and must never lower the stored rank.
type StatusWriter interface {
	Write(ctx context.Context, messageID string, status enums.MessageStatus, at time.Time) (bool, error)
}

type messageLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
	FindMessageIDBySendLog(ctx context.Context, providerMessageID string) (uuid.UUID, bool, error)
}

// Updater turns a provider status callback into a status write against the
// canonical message.
type Updater struct {
	messages messageLookup
	writer   StatusWriter
	logg     *logger.Logger
	now      func() time.Time
}

func NewUpdater(messages messageLookup, writer StatusWriter, logg *logger.Logger) (*Updater, error) {
	if messages == nil {
		return nil, fmt.Errorf("message lookup required")
	}
	if writer == nil {
		return nil, fmt.Errorf("status writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Updater{messages: messages, writer: writer, logg: logg, now: time.Now}, nil
}

// Apply records rawStatus for providerMessageID observed at unixTimestamp
// (seconds; now when missing). Unknown status text is forwarded unchanged
// and left to the writer.
func (u *Updater) Apply(ctx context.Context, providerMessageID, rawStatus, unixTimestamp string) error {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return fmt.Errorf("provider message id required")
	}
	status := enums.NormalizeMessageStatus(rawStatus)
	at := types.UnixSecondsOr(unixTimestamp, u.now())

	messageID, source := u.resolve(ctx, providerMessageID)
	ctx = u.logg.WithFields(ctx, map[string]any{
		"provider_message_id": providerMessageID,
		"message_id":          messageID,
		"message_id_source":   source,
		"status":              string(status),
	})

	advanced, err := u.writer.Write(ctx, messageID, status, at)
	if err != nil {
		return fmt.Errorf("write status %s for %s: %w", status, providerMessageID, err)
	}
	if advanced {
		u.logg.Debug(ctx, "message status advanced")
	}
	return nil
}

// resolve finds the canonical message id: a message record first, then the
// send log, else the provider id itself. Lookup errors fall through to the
// next source.
func (u *Updater) resolve(ctx context.Context, providerMessageID string) (string, string) {
	if msg, err := u.messages.FindByProviderMessageID(ctx, providerMessageID); err != nil {
		u.logg.Error(ctx, "message lookup by provider id failed", err)
	} else if msg != nil {
		return msg.ID.String(), "message"
	}

	if id, err := uuid.Parse(providerMessageID); err == nil {
		if msg, err := u.messages.FindByID(ctx, id); err != nil {
			u.logg.Error(ctx, "message lookup by id failed", err)
		} else if msg != nil {
			return msg.ID.String(), "message"
		}
	}

	if id, ok, err := u.messages.FindMessageIDBySendLog(ctx, providerMessageID); err != nil {
		u.logg.Error(ctx, "send log lookup failed", err)
	} else if ok {
		return id.String(), "send_log"
	}
	return providerMessageID, "provider"
}
