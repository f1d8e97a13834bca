package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.BaseDelay)
	assert.Equal(t, 10*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, 30*time.Minute, cfg.AlertThrottle)
	assert.Equal(t, 15*time.Minute, cfg.FailureWindow)
	assert.Equal(t, 8, cfg.FailureSpikeThreshold)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JOB_CONCURRENCY", "12")
	t.Setenv("JOB_STALE_THRESHOLD", "30m")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example.com/ops")
	t.Setenv("FAILURE_SPIKE_THRESHOLD", "20")

	cfg := Load()

	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, "https://hooks.example.com/ops", cfg.AlertWebhookURL)
	assert.Equal(t, 20, cfg.FailureSpikeThreshold)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("JOB_CONCURRENCY", "lots")
	t.Setenv("JOB_BASE_DELAY", "soon")

	cfg := Load()

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, time.Second, cfg.BaseDelay)
}
