package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Game.FreeDailyLimit)
	assert.Equal(t, 999999, cfg.Game.PremiumDailyLimit)
	assert.Equal(t, "revenuecat", cfg.Billing.Provider)
	assert.Equal(t, "https://api.revenuecat.com/v1", cfg.RevenueCat.BaseURL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.ExpiresIn)
	assert.Equal(t, 100, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, 15*time.Second, cfg.Kafka.StartupTimeout)
	assert.False(t, cfg.App.IsProduction())
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("RIDDLE_TEST_SECRET", "s3cret")
	t.Setenv("RIDDLE_TEST_PROVIDER", "Stripe")

	cfg, err := Parse([]byte("jwt:\n  secret: ${RIDDLE_TEST_SECRET}\nbilling:\n  provider: ${RIDDLE_TEST_PROVIDER}\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "stripe", cfg.Billing.Provider)
}

func TestParseRejectsUnknownProvider(t *testing.T) {
	_, err := Parse([]byte("billing:\n  provider: paypal\n"))
	require.Error(t, err)
}

func TestParseRejectsDefaultSecretInProduction(t *testing.T) {
	_, err := Parse([]byte("app:\n  environment: production\n"))
	require.Error(t, err)
}

func TestLoadDotEnvMissingFileIsIgnored(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnvSetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RIDDLE_DOTENV_CHECK=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RIDDLE_DOTENV_CHECK") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("RIDDLE_DOTENV_CHECK"))
}
