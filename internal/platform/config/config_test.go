package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_TOKENS", "s3cret:alice")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10000, cfg.MaxConnections)
	assert.True(t, cfg.IsDevelopment())
	assert.Less(t, cfg.SweepInterval, cfg.InactivityTimeout)
}

func TestLoad_RequiresVerifierSource(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("AUTH_TOKENS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL or AUTH_TOKENS")
}

func TestLoad_RejectsInvertedTimeouts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SWEEP_INTERVAL", "10m")
	t.Setenv("INACTIVITY_TIMEOUT", "1m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INACTIVITY_TIMEOUT")
}

func TestLoad_RejectsNonPositiveMaxConnections(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONNECTIONS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONNECTIONS")
}

func TestParseStaticTokens(t *testing.T) {
	tokens, err := ParseStaticTokens("s3cret:alice, t0ken:bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s3cret": "alice", "t0ken": "bob"}, tokens)
}

func TestParseStaticTokens_Malformed(t *testing.T) {
	_, err := ParseStaticTokens("missing-separator")
	require.Error(t, err)

	_, err = ParseStaticTokens(":nouser")
	require.Error(t, err)

	_, err = ParseStaticTokens("")
	require.Error(t, err)
}
