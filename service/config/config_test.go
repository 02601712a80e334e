package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/solspray")
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("FEE_COLLECTOR_ADDRESS", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	t.Setenv("KEYPAIR_PATH", "/etc/solspray/id.json")
}

func TestLoadWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, "./data", cfg.PassStoreDir)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("FEE_COLLECTOR_ADDRESS", "")
	t.Setenv("KEYPAIR_PATH", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
	assert.Contains(t, err.Error(), "FEE_COLLECTOR_ADDRESS is required")
	assert.Contains(t, err.Error(), "KEYPAIR_PATH is required")
}

func TestLoadInvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIRM_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIRM_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/solspray",
		SolanaRPCURL:        "https://api.devnet.solana.com",
		FeeCollectorAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		KeypairPath:         "/etc/solspray/id.json",
		ConfirmTimeout:      30 * time.Second,
	}
	assert.NoError(t, cfg.Validate())

	cfg.ConfirmTimeout = 100 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg.ConfirmTimeout = 30 * time.Second
	cfg.KeypairPath = ""
	assert.Error(t, cfg.Validate())
}
