package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidFillsDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Valid())
	assert.Equal(t, "127.0.0.1:12345", cfg.Addr)
	assert.Equal(t, 0.2, cfg.EWMAAlpha)
	assert.Equal(t, 30, cfg.BiasPacket)
	assert.Equal(t, 4096, cfg.RegistryCapacity)
	assert.Equal(t, time.Duration(0), cfg.ReceiveTimeout)
}

func TestConfigValidAcceptsRecommendedReceiveTimeout(t *testing.T) {
	cfg := Config{ReceiveTimeout: time.Second}
	require.NoError(t, cfg.Valid())
	assert.Equal(t, time.Second, cfg.ReceiveTimeout)
}

func TestConfigValidRejectsOutOfRangeReceiveTimeout(t *testing.T) {
	assert.Error(t, (&Config{ReceiveTimeout: -1}).Valid())
	assert.Error(t, (&Config{ReceiveTimeout: 2 * ReceiveTimeoutMax}).Valid())
}

func TestConfigValidRejectsOutOfRangeAlpha(t *testing.T) {
	cfg := Config{EWMAAlpha: 1.5}
	assert.Error(t, cfg.Valid())
}

func TestConfigValidRejectsOutOfRangeBiasPacket(t *testing.T) {
	cfg := Config{BiasPacket: -1}
	assert.Error(t, cfg.Valid())
}

func TestConfigValidNilReceiver(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Valid())
}
