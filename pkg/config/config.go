package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Sendgrid     SendgridConfig
	Sync         SyncConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CABINET_APP_ENV" required:"true"`
	Port         string `envconfig:"CABINET_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CABINET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CABINET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CABINET_DB_DSN"`
	Driver string `envconfig:"CABINET_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CABINET_DB_HOST"`
	Port     int    `envconfig:"CABINET_DB_PORT" default:"5432"`
	User     string `envconfig:"CABINET_DB_USER"`
	Password string `envconfig:"CABINET_DB_PASSWORD"`
	Name     string `envconfig:"CABINET_DB_NAME"`
	SSLMode  string `envconfig:"CABINET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CABINET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CABINET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CABINET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CABINET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	if db.Host == "" {
		missing = append(missing, "CABINET_DB_HOST")
	}
	if db.User == "" {
		missing = append(missing, "CABINET_DB_USER")
	}
	if db.Name == "" {
		missing = append(missing, "CABINET_DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("either CABINET_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	db.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		db.Port,
		url.PathEscape(db.Name),
		db.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"CABINET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CABINET_REDIS_ADDR"`
	Password     string        `envconfig:"CABINET_REDIS_PASSWORD"`
	DB           int           `envconfig:"CABINET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CABINET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CABINET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CABINET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CABINET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CABINET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CABINET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CABINET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CABINET_JWT_EXPIRATION_MINUTES" default:"720"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CABINET_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CABINET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CABINET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ChangesTopic         string `envconfig:"CABINET_PUBSUB_CHANGES_TOPIC" default:"cab-table-changes"`
	UsersSubscription    string `envconfig:"CABINET_PUBSUB_USERS_SUBSCRIPTION" required:"true"`
	TicketsSubscription  string `envconfig:"CABINET_PUBSUB_TICKETS_SUBSCRIPTION" required:"true"`
	MessagesSubscription string `envconfig:"CABINET_PUBSUB_MESSAGES_SUBSCRIPTION" required:"true"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"CABINET_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"CABINET_SENDGRID_FROM_EMAIL" default:"cabinet@loudlane.ru"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CABINET_AUTO_MIGRATE" default:"false"`
}

type SyncConfig struct {
	BootstrapTimeout time.Duration `envconfig:"CABINET_SYNC_BOOTSTRAP_TIMEOUT" default:"30s"`
	PublishTimeout   time.Duration `envconfig:"CABINET_SYNC_PUBLISH_TIMEOUT" default:"10s"`
}
