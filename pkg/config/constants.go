package config

const (
	EnvPrefix = "WABALEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "WABALEDGER_APP_ENV"
	EnvPort      = "WABALEDGER_APP_PORT"
	EnvDBDSN     = "WABALEDGER_DB_DSN"
	EnvDBHost    = "WABALEDGER_DB_HOST"
	EnvDBUser    = "WABALEDGER_DB_USER"
	EnvDBName    = "WABALEDGER_DB_NAME"
	EnvRedisURL  = "WABALEDGER_REDIS_URL"
	EnvUseSQLite = "WABALEDGER_USE_SQLITE"

	EnvIngressQueueCapacity   = "WABALEDGER_INGRESS_QUEUE_CAPACITY"
	EnvWhatsAppVerifyToken    = "WABALEDGER_WHATSAPP_VERIFY_TOKEN"
	EnvFailedWebhookRetention = "WABALEDGER_FAILED_WEBHOOK_RETENTION_DAYS"
	EnvPubSubInboundTopic     = "WABALEDGER_PUBSUB_INBOUND_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
