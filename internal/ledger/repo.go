package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db"
	"github.com/angelmondragon/wabaledger/pkg/db/models"
	"github.com/angelmondragon/wabaledger/pkg/enums"
)

// Repository manages persistence for billing ledger events. Rows are only
// ever inserted.
type Repository interface {
	// Insert appends event. It reports false, with no error, when the
	// provider message dedup index already holds an equivalent row.
	Insert(ctx context.Context, event *models.LedgerEvent) (bool, error)
	ExistsForConversation(ctx context.Context, businessID uuid.UUID, provider string, eventType enums.LedgerEventType, conversationID string) (bool, error)
	ExistsForMessage(ctx context.Context, businessID uuid.UUID, provider string, eventType enums.LedgerEventType, messageID uuid.UUID) (bool, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]models.LedgerEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) Insert(ctx context.Context, event *models.LedgerEvent) (bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(event).Error
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err, models.LedgerProviderMessageConstraint) {
		return false, nil
	}
	return false, fmt.Errorf("insert ledger event: %w", err)
}

func (r *repository) ExistsForConversation(ctx context.Context, businessID uuid.UUID, provider string, eventType enums.LedgerEventType, conversationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Where("business_id = ? AND provider = ? AND event_type = ? AND conversation_id = ?",
			businessID, provider, string(eventType), conversationID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("probe ledger conversation: %w", err)
	}
	return count > 0, nil
}

func (r *repository) ExistsForMessage(ctx context.Context, businessID uuid.UUID, provider string, eventType enums.LedgerEventType, messageID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Where("business_id = ? AND provider = ? AND event_type = ? AND message_id = ?",
			businessID, provider, string(eventType), messageID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("probe ledger message: %w", err)
	}
	return count > 0, nil
}

func (r *repository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
