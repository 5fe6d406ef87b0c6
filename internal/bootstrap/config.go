package bootstrap

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config is read from the environment (and .env when present).
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development" validate:"oneof=development production test"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080" validate:"required,numeric"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql" validate:"oneof=mysql memory"`
	DBUser      string `envconfig:"DB_USER" validate:"required_if=StoreDriver mysql"`
	DBPassword  string `envconfig:"DB_PASSWORD" validate:"required_if=StoreDriver mysql"`
	DBHost      string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort      string `envconfig:"DB_PORT" default:"3306" validate:"numeric"`
	DBName      string `envconfig:"DB_NAME" default:"sketch_lobby"`

	RedisAddr     string `envconfig:"REDIS_ADDR" validate:"required"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"sl:"`

	JWTSecret         string        `envconfig:"JWT_SECRET" validate:"required"`
	JWTExpiry         time.Duration `envconfig:"JWT_EXPIRY" default:"24h" validate:"gt=0"`
	SocketTokenExpiry time.Duration `envconfig:"SOCKET_TOKEN_EXPIRY" default:"2m" validate:"gt=0"`
	GuestTTL          time.Duration `envconfig:"GUEST_TTL" default:"24h" validate:"gt=0"`
	TxTimeout         time.Duration `envconfig:"TX_TIMEOUT" default:"3s" validate:"gt=0"`

	RateLimitMax      int           `envconfig:"RATE_LIMIT_MAX" default:"100" validate:"gt=0"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1s" validate:"gt=0"`
	CORSAllowedOrigin string        `envconfig:"CORS_ALLOWED_ORIGIN" default:"http://localhost:3000"`

	AuditSchedule     string `envconfig:"AUDIT_SCHEDULE" default:"@every 5m" validate:"required"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"10" validate:"gt=0"`
}

// LoadConfig reads .env (optional) and the environment, then validates.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

// NewLogger builds the application logger: JSON in production, text
// otherwise. The package-level logrus logger used by the services gets the
// same formatter and level.
func NewLogger(cfg *Config) *logrus.Logger {
	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if cfg.AppEnv == "production" {
		formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetFormatter(formatter)
	logrus.SetLevel(level)

	log := logrus.New()
	log.SetFormatter(formatter)
	log.SetLevel(level)
	return log
}
