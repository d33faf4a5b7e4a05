package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Loop.BatchSize)
	assert.Equal(t, 64, cfg.Loop.RandomCandidates)
	assert.Equal(t, int64(0), cfg.Loop.Seed)
	assert.InDelta(t, 1e-6, cfg.Loop.NoiseVariance, 0)
	assert.InDelta(t, 0.01, cfg.Loop.AcquisitionXi, 0)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOOP_BATCH_SIZE", "4")
	t.Setenv("LOOP_SEED", "1234")
	t.Setenv("LOOP_NOISE_VARIANCE", "0.001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Loop.BatchSize)
	assert.Equal(t, int64(1234), cfg.Loop.Seed)
	assert.InDelta(t, 0.001, cfg.Loop.NoiseVariance, 0)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}
