package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/wabaledger/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestLedgerMigrationContainsDedupIndex(t *testing.T) {
	content := readMigration(t, "create_whatsapp_ledger_events")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS whatsapp_ledger_events",
		"payload jsonb NOT NULL",
		"price_amount numeric(14,6)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_whatsapp_ledger_events_provider_message",
		"(business_id, provider, event_type, provider_message_id)",
		"WHERE provider_message_id IS NOT NULL",
		"idx_whatsapp_ledger_events_conversation",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMessagesMigrationContainsStatusRank(t *testing.T) {
	content := readMigration(t, "create_whatsapp_messages")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS whatsapp_messages",
		"status_rank integer NOT NULL DEFAULT 0",
		"CREATE TABLE IF NOT EXISTS whatsapp_send_logs",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFailedWebhookMigrationIndexesCreatedAt(t *testing.T) {
	content := readMigration(t, "create_failed_webhook_logs")
	if !strings.Contains(content, "idx_failed_webhook_logs_created_at") {
		t.Error("expected created_at index for the retention sweep")
	}
	if !strings.Contains(content, "payload bytea NOT NULL") {
		t.Error("expected raw bodies stored as bytea")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
