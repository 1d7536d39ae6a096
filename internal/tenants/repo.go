package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
)

// Directory looks up the business owning a single provider identifier.
type Directory interface {
	Lookup(ctx context.Context, kind HintKind, value string) (uuid.UUID, bool, error)
}

// BusinessChecker reports whether a business exists in the tenant directory.
type BusinessChecker interface {
	BusinessExists(ctx context.Context, businessID uuid.UUID) (bool, error)
}

// Repository reads the whatsapp_accounts tenant directory.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a whatsapp_accounts backed directory.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Lookup(ctx context.Context, kind HintKind, value string) (uuid.UUID, bool, error) {
	if value == "" {
		return uuid.Nil, false, nil
	}
	if kind == HintDisplayPhoneNumber {
		return r.lookupDisplayNumber(ctx, value)
	}

	column, err := columnFor(kind)
	if err != nil {
		return uuid.Nil, false, err
	}

	var account models.WhatsAppAccount
	err = r.db.WithContext(ctx).
		Where(column+" = ?", value).
		Order("created_at ASC").
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup tenant by %s: %w", kind, err)
	}
	return account.BusinessID, true, nil
}

// lookupDisplayNumber narrows candidates with a digit-interleaved LIKE pattern
// and then compares digits in Go, since stored numbers keep their formatting.
func (r *Repository) lookupDisplayNumber(ctx context.Context, digits string) (uuid.UUID, bool, error) {
	var candidates []models.WhatsAppAccount
	err := r.db.WithContext(ctx).
		Where("display_phone_number LIKE ?", likeDigits(digits)).
		Order("created_at ASC").
		Find(&candidates).Error
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup tenant by display number: %w", err)
	}
	for _, candidate := range candidates {
		if candidate.DisplayPhoneNumber != nil && DigitsOnly(*candidate.DisplayPhoneNumber) == digits {
			return candidate.BusinessID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (r *Repository) BusinessExists(ctx context.Context, businessID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WhatsAppAccount{}).
		Where("business_id = ?", businessID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check business: %w", err)
	}
	return count > 0, nil
}

func columnFor(kind HintKind) (string, error) {
	switch kind {
	case HintPhoneNumberID, HintWabaID, HintDisplayPhoneNumber, HintWaID:
		return string(kind), nil
	default:
		return "", fmt.Errorf("unknown hint kind %q", kind)
	}
}

func likeDigits(digits string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range digits {
		b.WriteRune(r)
		b.WriteByte('%')
	}
	return b.String()
}
