package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ingress      IngressConfig
	WhatsApp     WhatsAppConfig
	Tenants      TenantsConfig
	Retention    RetentionConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WABALEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"WABALEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WABALEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WABALEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WABALEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WABALEDGER_DB_DSN"`
	Driver string `envconfig:"WABALEDGER_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"WABALEDGER_SQLITE_PATH" default:"wabaledger.db"`

	LegacyHost     string `envconfig:"WABALEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"WABALEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WABALEDGER_DB_USER"`
	LegacyPassword string `envconfig:"WABALEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"WABALEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"WABALEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WABALEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WABALEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WABALEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WABALEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WABALEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WABALEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"WABALEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"WABALEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WABALEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WABALEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WABALEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WABALEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WABALEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WABALEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WABALEDGER_AUTO_MIGRATE" default:"false"`
}

// IngressConfig sizes the in-process webhook buffer between the HTTP receiver and the dispatcher.
type IngressConfig struct {
	QueueCapacity int `envconfig:"WABALEDGER_INGRESS_QUEUE_CAPACITY" default:"5000"`
}

// WhatsAppConfig holds the Meta webhook handshake token and the optional app
// secret used to verify X-Hub-Signature-256.
type WhatsAppConfig struct {
	VerifyToken string `envconfig:"WABALEDGER_WHATSAPP_VERIFY_TOKEN"`
	AppSecret   string `envconfig:"WABALEDGER_WHATSAPP_APP_SECRET"`
}

type TenantsConfig struct {
	CacheTTL time.Duration `envconfig:"WABALEDGER_TENANT_CACHE_TTL" default:"10m"`
}

type RetentionConfig struct {
	FailedWebhookDays int           `envconfig:"WABALEDGER_FAILED_WEBHOOK_RETENTION_DAYS" default:"7"`
	SweepInterval     time.Duration `envconfig:"WABALEDGER_RETENTION_SWEEP_INTERVAL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WABALEDGER_GCP_PROJECT_ID"`
}

// PubSubConfig holds the topics collaborator events are forwarded to. Empty topics disable forwarding.
type PubSubConfig struct {
	TemplateTopic string `envconfig:"WABALEDGER_PUBSUB_TEMPLATE_TOPIC"`
	ClickTopic    string `envconfig:"WABALEDGER_PUBSUB_CLICK_TOPIC"`
	InboundTopic  string `envconfig:"WABALEDGER_PUBSUB_INBOUND_TOPIC"`
}

// Enabled reports whether any forwarding topic is configured.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.TemplateTopic) != "" ||
		strings.TrimSpace(p.ClickTopic) != "" ||
		strings.TrimSpace(p.InboundTopic) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
