package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askhub_backend/pkg/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/askhub")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 7, cfg.Billing.TrialDays)
	assert.Equal(t, 24*time.Hour, cfg.Billing.GracePeriod)
	assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, "0 9 * * *", cfg.Cron.TrialSweep)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TRIAL_DAYS", "14")
	t.Setenv("STRIPE_TIMEOUT", "3s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Billing.TrialDays)
	assert.Equal(t, 3*time.Second, cfg.Stripe.Timeout)
}

func TestLoadRejectsNegativeTrial(t *testing.T) {
	setRequired(t)
	t.Setenv("TRIAL_DAYS", "-1")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadRequiresStripeKey(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_SECRET_KEY", "")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
