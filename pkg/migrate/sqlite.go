package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/wabaledger/pkg/db/models"
)

// sqliteIndexes mirrors the indexes from the Postgres migrations that the
// pipeline depends on for correctness.
var sqliteIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + models.LedgerProviderMessageConstraint + `
		ON whatsapp_ledger_events (business_id, provider, event_type, provider_message_id)
		WHERE provider_message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_whatsapp_ledger_events_conversation
		ON whatsapp_ledger_events (business_id, provider, event_type, conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_whatsapp_messages_provider_message_id
		ON whatsapp_messages (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_whatsapp_send_logs_provider_message_id
		ON whatsapp_send_logs (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_failed_webhook_logs_created_at
		ON failed_webhook_logs (created_at)`,
}

// ApplySQLiteSchema creates the pipeline tables on a SQLite connection. It is
// used for local runs and repository tests.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	conn = conn.WithContext(ctx)
	if err := conn.AutoMigrate(
		&models.WhatsAppAccount{},
		&models.Message{},
		&models.SendLog{},
		&models.LedgerEvent{},
		&models.FailedWebhookLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range sqliteIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
