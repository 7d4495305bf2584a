package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"3000"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	JWTSecret           string        `env:"JWT_SECRET"`
	AdminSessionTTL     time.Duration `env:"ADMIN_SESSION_TTL" envDefault:"24h"`
	DoctorSessionTTL    time.Duration `env:"DOCTOR_SESSION_TTL" envDefault:"168h"`
	EmailChangeTokenTTL time.Duration `env:"EMAIL_CHANGE_TOKEN_TTL" envDefault:"1h"`

	OTPLength  int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPTTL     time.Duration `env:"OTP_TTL" envDefault:"15m"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	NotifyQueue  int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`

	SNSRegion  string `env:"SNS_REGION" envDefault:"us-east-1"`
	SMSEnabled bool   `env:"SMS_ENABLED" envDefault:"false"`

	RateLimitBackend  string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"` // "memory" | "redis"
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	AuthRateWindow    time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"1m"`
	AuthRateLimit     int           `env:"AUTH_RATE_LIMIT" envDefault:"10"`
	ContactRateWindow time.Duration `env:"CONTACT_RATE_WINDOW" envDefault:"1m"`
	ContactRateLimit  int           `env:"CONTACT_RATE_LIMIT" envDefault:"3"`

	FrontendURL     string `env:"FE_URL" envDefault:"http://localhost:5173"`
	EmailChangeLink string `env:"EMAIL_CHANGE_LINK" envDefault:"http://localhost:3000/v1/accounts/confirm-email"`

	AdminSeedEmail    string `env:"ADMIN_SEED_EMAIL"`
	AdminSeedPassword string `env:"ADMIN_SEED_PASSWORD"`
	AdminSeedName     string `env:"ADMIN_SEED_NAME" envDefault:"Administrator"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","` // CORS allowed origins
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`                // CIDRs allowed to set X-Forwarded-For
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Admins          string `env:"DYNAMO_TABLE_ADMINS" envDefault:"admins"`
	Doctors         string `env:"DYNAMO_TABLE_DOCTORS" envDefault:"doctors"`
	ContactMessages string `env:"DYNAMO_TABLE_CONTACT_MESSAGES" envDefault:"contact_messages"`
	AccountKeys     string `env:"DYNAMO_TABLE_ACCOUNT_KEYS" envDefault:"account_keys"`
}

// minSecretLen is the shortest HS256 secret accepted at startup.
const minSecretLen = 32

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run safely with.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < minSecretLen {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.OTPLength < 4 {
		return errors.New("OTP_LENGTH must be at least 4")
	}
	if c.AuthRateLimit < 1 || c.ContactRateLimit < 1 {
		return errors.New("rate limits must be positive")
	}
	if c.AuthRateWindow <= 0 || c.ContactRateWindow <= 0 {
		return errors.New("rate limit windows must be positive")
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return errors.New("RATE_LIMIT_BACKEND must be memory or redis")
	}
	return nil
}

// IsProduction reports whether the app runs with production defaults.
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }
