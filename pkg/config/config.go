package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied to every environment variable the service reads.
const EnvPrefix = "MEROMART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Frontend     FrontendConfig
	Esewa        EsewaConfig
	Khalti       KhaltiConfig
	Cron         CronConfig
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
	Env          string `envconfig:"MEROMART_APP_ENV" required:"true"`
	Port         string `envconfig:"MEROMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEROMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEROMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MEROMART_DB_DSN"`
	Driver string `envconfig:"MEROMART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MEROMART_DB_HOST"`
	Port     int    `envconfig:"MEROMART_DB_PORT" default:"5432"`
	User     string `envconfig:"MEROMART_DB_USER"`
	Password string `envconfig:"MEROMART_DB_PASSWORD"`
	Name     string `envconfig:"MEROMART_DB_NAME"`
	SSLMode  string `envconfig:"MEROMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEROMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEROMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEROMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEROMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEROMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEROMART_REDIS_ADDR"`
	Password     string        `envconfig:"MEROMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEROMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEROMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEROMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEROMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEROMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEROMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MEROMART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEROMART_JWT_ISSUER" default:"meromart"`
	ExpirationMinutes int    `envconfig:"MEROMART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// FrontendConfig holds the base URL the payment gateways redirect back to.
type FrontendConfig struct {
	BaseURL string `envconfig:"MEROMART_FRONTEND_BASE_URL" default:"http://localhost:3000"`
}

type EsewaConfig struct {
	ProductCode string        `envconfig:"MEROMART_ESEWA_PRODUCT_CODE" default:"EPAYTEST"`
	SecretKey   string        `envconfig:"MEROMART_ESEWA_SECRET_KEY"`
	BaseURL     string        `envconfig:"MEROMART_ESEWA_BASE_URL" default:"https://rc-epay.esewa.com.np"`
	Timeout     time.Duration `envconfig:"MEROMART_ESEWA_TIMEOUT" default:"15s"`
}

type KhaltiConfig struct {
	SecretKey string        `envconfig:"MEROMART_KHALTI_SECRET_KEY"`
	BaseURL   string        `envconfig:"MEROMART_KHALTI_BASE_URL" default:"https://dev.khalti.com/api/v2"`
	Timeout   time.Duration `envconfig:"MEROMART_KHALTI_TIMEOUT" default:"15s"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MEROMART_CRON_INTERVAL" default:"1h"`
	PendingOrderTTL time.Duration `envconfig:"MEROMART_CRON_PENDING_ORDER_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEROMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEROMART_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		"MEROMART_DB_HOST": db.Host,
		"MEROMART_DB_USER": db.User,
		"MEROMART_DB_NAME": db.Name,
	}
	for _, key := range []string{"MEROMART_DB_HOST", "MEROMART_DB_USER", "MEROMART_DB_NAME"} {
		if parts[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either MEROMART_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
