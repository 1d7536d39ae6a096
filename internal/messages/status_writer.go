package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
	"github.com/angelmondragon/wabaledger/pkg/enums"
	"github.com/angelmondragon/wabaledger/pkg/logger"
)

var timestampColumns = map[enums.MessageStatus]string{
	enums.MessageStatusSent:      "sent_at",
	enums.MessageStatusDelivered: "delivered_at",
	enums.MessageStatusRead:      "read_at",
	enums.MessageStatusFailed:    "failed_at",
}

// StatusWriter persists delivery status transitions. A transition only lands
// when it raises status_rank, so replays and late lower-rank callbacks are
// no-ops regardless of which instance processes them. Failed is refused once
// a message was read.
type StatusWriter struct {
	db   *gorm.DB
	logg *logger.Logger
	now  func() time.Time
}

// NewStatusWriter builds a writer bound to db.
func NewStatusWriter(db *gorm.DB, logg *logger.Logger) *StatusWriter {
	return &StatusWriter{db: db, logg: logg, now: time.Now}
}

// Write records status for messageID, which is either an internal message id
// or, when no record could be resolved, the raw provider message id. It
// reports whether the stored status advanced.
func (w *StatusWriter) Write(ctx context.Context, messageID string, status enums.MessageStatus, at time.Time) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	rank := status.Rank()
	if rank == 0 {
		if w.logg != nil {
			ctx = w.logg.WithFields(ctx, map[string]any{"message_id": messageID, "status": string(status)})
			w.logg.Warn(ctx, "unknown status ignored by writer")
		}
		return false, nil
	}
	if at.IsZero() {
		at = w.now()
	}
	at = at.UTC()

	column, value := identityClause(messageID)
	db := w.db.WithContext(ctx)

	advance := db.Model(&models.Message{}).
		Where(column+" = ?", value).
		Where("status_rank < ?", rank)
	if status == enums.MessageStatusFailed {
		advance = advance.Where("status_rank < ?", enums.MessageStatusRead.Rank())
	}
	res := advance.Updates(map[string]any{
		"status":      string(status),
		"status_rank": rank,
		"updated_at":  w.now().UTC(),
	})
	if res.Error != nil {
		return false, fmt.Errorf("advance status: %w", res.Error)
	}

	// first observation of each lifecycle timestamp wins, even when the
	// status itself arrived out of order and did not advance
	tsColumn := timestampColumns[status]
	stamp := db.Model(&models.Message{}).Where(column+" = ?", value)
	if status == enums.MessageStatusFailed {
		// a read message never failed
		stamp = stamp.Where("status_rank <> ?", enums.MessageStatusRead.Rank())
	}
	if err := stamp.Update(tsColumn, gorm.Expr("COALESCE("+tsColumn+", ?)", at)).Error; err != nil {
		return res.RowsAffected > 0, fmt.Errorf("stamp %s: %w", tsColumn, err)
	}

	return res.RowsAffected > 0, nil
}

func identityClause(messageID string) (string, any) {
	if id, err := uuid.Parse(messageID); err == nil {
		return "id", id
	}
	return "provider_message_id", messageID
}
