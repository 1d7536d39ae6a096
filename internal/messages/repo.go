package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
)

// Repository reads and patches whatsapp_messages rows owned by the send path.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds a messages repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// FindByID returns the message or nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&msg).Error
	return found(&msg, err)
}

// FindByProviderMessageID returns the message carrying providerMessageID or nil.
func (r *Repository) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	if providerMessageID == "" {
		return nil, nil
	}
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		Order("created_at DESC").
		Take(&msg).Error
	return found(&msg, err)
}

// FindByConversationID returns the most recently created message in the
// conversation, or nil.
func (r *Repository) FindByConversationID(ctx context.Context, businessID uuid.UUID, conversationID string) (*models.Message, error) {
	if conversationID == "" {
		return nil, nil
	}
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND conversation_id = ?", businessID, conversationID).
		Order("created_at DESC").
		Take(&msg).Error
	return found(&msg, err)
}

// FindMessageIDBySendLog maps a provider message id through the send log.
func (r *Repository) FindMessageIDBySendLog(ctx context.Context, providerMessageID string) (uuid.UUID, bool, error) {
	if providerMessageID == "" {
		return uuid.Nil, false, nil
	}
	var entry models.SendLog
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		Order("created_at DESC").
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find send log: %w", err)
	}
	return entry.MessageID, true, nil
}

// ApplyProjection overwrites the non-nil projection fields on message id.
// It reports whether a row was touched.
func (r *Repository) ApplyProjection(ctx context.Context, id uuid.UUID, p Projection) (bool, error) {
	cols := p.Columns()
	if len(cols) == 0 {
		return false, nil
	}
	cols["updated_at"] = r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(cols)
	if res.Error != nil {
		return false, fmt.Errorf("apply projection: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func found(msg *models.Message, err error) (*models.Message, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
