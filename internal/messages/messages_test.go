package messages

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
	"github.com/angelmondragon/wabaledger/pkg/enums"
	"github.com/angelmondragon/wabaledger/pkg/migrate"
)

func setupMessagesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.ApplySQLiteSchema(context.Background(), db))
	return db
}

func strPtr(v string) *string { return &v }

func seedMessage(t *testing.T, db *gorm.DB, msg models.Message) models.Message {
	t.Helper()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.BusinessID == uuid.Nil {
		msg.BusinessID = uuid.New()
	}
	require.NoError(t, db.Create(&msg).Error)
	return msg
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.Message {
	t.Helper()
	var msg models.Message
	require.NoError(t, db.Where("id = ?", id).Take(&msg).Error)
	return msg
}

func TestStatusWriterNeverRegresses(t *testing.T) {
	db := setupMessagesTestDB(t)
	msg := seedMessage(t, db, models.Message{ProviderMessageID: strPtr("wamid.ABC")})
	writer := NewStatusWriter(db, nil)
	ctx := context.Background()

	readAt := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	advanced, err := writer.Write(ctx, msg.ID.String(), enums.MessageStatusRead, readAt)
	require.NoError(t, err)
	assert.True(t, advanced)

	sentAt := readAt.Add(-time.Minute)
	advanced, err = writer.Write(ctx, msg.ID.String(), enums.MessageStatusSent, sentAt)
	require.NoError(t, err)
	assert.False(t, advanced)

	got := reload(t, db, msg.ID)
	require.NotNil(t, got.Status)
	assert.Equal(t, "read", *got.Status)
	assert.Equal(t, 3, got.StatusRank)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(readAt))
	require.NotNil(t, got.SentAt, "late sent callback still records its timestamp")
	assert.True(t, got.SentAt.Equal(sentAt))
}

func TestStatusWriterIsIdempotentAndFailedIsTerminal(t *testing.T) {
	db := setupMessagesTestDB(t)
	msg := seedMessage(t, db, models.Message{ProviderMessageID: strPtr("wamid.T")})
	writer := NewStatusWriter(db, nil)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := writer.Write(ctx, "wamid.T", enums.MessageStatusDelivered, first)
	require.NoError(t, err)
	advanced, err := writer.Write(ctx, "wamid.T", enums.MessageStatusDelivered, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, advanced)

	got := reload(t, db, msg.ID)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(first), "first observation wins")

	_, err = writer.Write(ctx, "wamid.T", enums.MessageStatusFailed, first.Add(2*time.Hour))
	require.NoError(t, err)
	advanced, err = writer.Write(ctx, "wamid.T", enums.MessageStatusRead, first.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, "failed", *reload(t, db, msg.ID).Status)
}

func TestStatusWriterKeepsReadAgainstLaterFailure(t *testing.T) {
	db := setupMessagesTestDB(t)
	writer := NewStatusWriter(db, nil)
	ctx := context.Background()
	readAt := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "deleted after read", raw: "deleted"},
		{name: "failed after read", raw: "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := seedMessage(t, db, models.Message{})
			_, err := writer.Write(ctx, msg.ID.String(), enums.MessageStatusRead, readAt)
			require.NoError(t, err)

			advanced, err := writer.Write(ctx, msg.ID.String(), enums.NormalizeMessageStatus(tt.raw), readAt.Add(time.Minute))
			require.NoError(t, err)
			assert.False(t, advanced)

			got := reload(t, db, msg.ID)
			require.NotNil(t, got.Status)
			assert.Equal(t, "read", *got.Status)
			assert.Equal(t, 3, got.StatusRank)
			assert.Nil(t, got.FailedAt)
		})
	}
}

func TestStatusWriterFailsDeliveredMessage(t *testing.T) {
	db := setupMessagesTestDB(t)
	msg := seedMessage(t, db, models.Message{})
	writer := NewStatusWriter(db, nil)
	ctx := context.Background()
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := writer.Write(ctx, msg.ID.String(), enums.MessageStatusDelivered, at)
	require.NoError(t, err)
	advanced, err := writer.Write(ctx, msg.ID.String(), enums.MessageStatusFailed, at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, advanced)

	got := reload(t, db, msg.ID)
	assert.Equal(t, "failed", *got.Status)
	require.NotNil(t, got.FailedAt)
	assert.True(t, got.FailedAt.Equal(at.Add(time.Minute)))
}

func TestStatusWriterIgnoresUnknownStatus(t *testing.T) {
	db := setupMessagesTestDB(t)
	msg := seedMessage(t, db, models.Message{})
	advanced, err := NewStatusWriter(db, nil).Write(context.Background(), msg.ID.String(), enums.MessageStatus("playing"), time.Now())
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Nil(t, reload(t, db, msg.ID).Status)
}

func TestApplyProjectionKeepsExistingValues(t *testing.T) {
	db := setupMessagesTestDB(t)
	msg := seedMessage(t, db, models.Message{
		ConversationCategory: strPtr("marketing"),
		PriceCurrency:        strPtr("USD"),
	})
	repo := NewRepository(db)
	ctx := context.Background()

	chargeable := true
	started := time.Date(2023, 11, 13, 22, 13, 20, 0, time.UTC)
	touched, err := repo.ApplyProjection(ctx, msg.ID, Projection{
		ConversationID:        strPtr("conv-1"),
		ConversationStartedAt: &started,
		IsChargeable:          &chargeable,
		PriceAmount:           decimal.NewNullDecimal(decimal.RequireFromString("0.0125")),
	})
	require.NoError(t, err)
	assert.True(t, touched)

	got := reload(t, db, msg.ID)
	assert.Equal(t, "conv-1", *got.ConversationID)
	assert.Equal(t, "marketing", *got.ConversationCategory, "nil fields must not clobber")
	assert.Equal(t, "USD", *got.PriceCurrency)
	assert.True(t, *got.IsChargeable)
	assert.True(t, got.PriceAmount.Valid)
	assert.True(t, got.PriceAmount.Decimal.Equal(decimal.RequireFromString("0.0125")))
	require.NotNil(t, got.ConversationStartedAt)
	assert.True(t, got.ConversationStartedAt.Equal(started))

	touched, err = repo.ApplyProjection(ctx, msg.ID, Projection{})
	require.NoError(t, err)
	assert.False(t, touched)
}

func TestFindersPreferMostRecent(t *testing.T) {
	db := setupMessagesTestDB(t)
	biz := uuid.New()
	older := seedMessage(t, db, models.Message{BusinessID: biz, ConversationID: strPtr("conv-9"), CreatedAt: time.Now().Add(-time.Hour)})
	newer := seedMessage(t, db, models.Message{BusinessID: biz, ConversationID: strPtr("conv-9"), ProviderMessageID: strPtr("wamid.N"), CreatedAt: time.Now()})
	repo := NewRepository(db)
	ctx := context.Background()

	got, err := repo.FindByConversationID(ctx, biz, "conv-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
	assert.NotEqual(t, older.ID, got.ID)

	got, err = repo.FindByProviderMessageID(ctx, "wamid.N")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = repo.FindByProviderMessageID(ctx, "wamid.missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, db.Create(&models.SendLog{ID: uuid.New(), MessageID: older.ID, ProviderMessageID: "wamid.OLD"}).Error)
	id, ok, err := repo.FindMessageIDBySendLog(ctx, "wamid.OLD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, older.ID, id)
}
