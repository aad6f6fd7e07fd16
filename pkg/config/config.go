package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Billing  BillingConfig
	Cron     CronConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port        string `env:"PORT" envDefault:"3000"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	// SeedDemo inserts a demo user with content on startup.
	SeedDemo bool `env:"SEED_DEMO" envDefault:"false"`
}

type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL,required,notEmpty"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET,required,notEmpty"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

type StripeConfig struct {
	SecretKey     string        `env:"STRIPE_SECRET_KEY,required,notEmpty"`
	WebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required,notEmpty"`
	Timeout       time.Duration `env:"STRIPE_TIMEOUT" envDefault:"10s"`
	MaxRetries    int64         `env:"STRIPE_MAX_RETRIES" envDefault:"2"`
}

type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	From                 string `env:"EMAIL_FROM" envDefault:"AskHub <noreply@askhub.dev>"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@askhub.dev"`
}

type BillingConfig struct {
	TrialDays   int           `env:"TRIAL_DAYS" envDefault:"7"`
	GracePeriod time.Duration `env:"SUBSCRIPTION_GRACE_PERIOD" envDefault:"24h"`
	CatalogPath string        `env:"PRICING_CATALOG_PATH"`
}

type CronConfig struct {
	TrialSweep        string `env:"CRON_TRIAL_SWEEP" envDefault:"0 9 * * *"`
	SubscriptionSweep string `env:"CRON_SUBSCRIPTION_SWEEP" envDefault:"30 9 * * *"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.Billing.TrialDays < 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("TRIAL_DAYS must not be negative"))
	}
	return cfg, nil
}
