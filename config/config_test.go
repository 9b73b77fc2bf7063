package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg := Load(v)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "aegis.db", cfg.DBPath)
	assert.Equal(t, 70, cfg.VerificationThreshold)
	assert.Equal(t, 15*time.Minute, cfg.PlausibleWindow)
	assert.Equal(t, 30*time.Minute, cfg.Lookback)
	assert.Equal(t, 5*time.Minute, cfg.ForwardSlack)
	assert.Equal(t, 60, cfg.MinPanicScore)
	assert.Equal(t, 20*time.Second, cfg.ContentTimeout)
	assert.Equal(t, 2*time.Hour, cfg.ImpactSweepWindow)
	assert.False(t, cfg.Simulation)
	assert.Empty(t, cfg.Tickers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AEGIS_SIMULATION", "true")
	t.Setenv("AEGIS_VERIFICATION_THRESHOLD", "75")
	t.Setenv("AEGIS_TICKERS", "reliance.ns, tcs.ns,,")
	t.Setenv("AEGIS_LOOKBACK", "45m")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("YF_API_KEY", "yf-key")

	v := viper.New()
	SetDefaults(v)
	cfg := Load(v)

	assert.True(t, cfg.Simulation)
	assert.Equal(t, 75, cfg.VerificationThreshold)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS"}, cfg.Tickers)
	assert.Equal(t, 45*time.Minute, cfg.Lookback)
	assert.Equal(t, "g-key", cfg.GeminiAPIKey)
	assert.Equal(t, "yf-key", cfg.YFAPIKey)
}
