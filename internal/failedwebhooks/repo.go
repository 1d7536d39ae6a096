package failedwebhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
)

// Reasons recorded on failed webhook rows.
const (
	ReasonQueueFull        = "queue_full"
	ReasonQueueUnavailable = "queue_unavailable"
	ReasonUnreadableBody   = "unreadable_body"
	ReasonInvalidSignature = "invalid_signature"
	ReasonUnknownProvider  = "unknown_provider"
	ReasonMalformedJSON    = "malformed_json"
)

// Repository stores raw webhook bodies that could not be processed.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds a failed webhook repository bound to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Record stores payload with reason. provider may be empty.
func (r *Repository) Record(ctx context.Context, provider, reason string, payload []byte) error {
	entry := &models.FailedWebhookLog{
		ID:        uuid.New(),
		Reason:    reason,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: r.now().UTC(),
	}
	if p := strings.TrimSpace(provider); p != "" {
		entry.Provider = &p
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record failed webhook: %w", err)
	}
	return nil
}

// DeleteOlderThan purges rows created before cutoff and returns the count.
func (r *Repository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Delete(&models.FailedWebhookLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete failed webhooks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
