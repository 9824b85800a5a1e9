package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridhall.toml")
	contents := `
listen_address = "0.0.0.0"
listen_port = 9100
token_secret = "s3cret"
history_limit = 25
canonical_slug = "plaza"

[persistence]
type = "sqlite"
dsn = "gridhall.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := ReadConfiguration(path, GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.ListenAddress)
	assert.Equal(t, 9100, cfg.ListenPort)
	assert.Equal(t, "s3cret", cfg.TokenSecret)
	assert.Equal(t, 25, cfg.HistoryLimit)
	assert.Equal(t, "plaza", cfg.CanonicalSlug)
	assert.Equal(t, "sqlite", cfg.PersistenceConfig.Type)
	assert.Equal(t, "gridhall.db", cfg.PersistenceConfig.DSN)
	// defaults fill whatever the file leaves out
	assert.Equal(t, 500, cfg.MessageMaxLen)
	assert.Equal(t, 4.0, cfg.WalkSpeed)
	assert.Equal(t, "0.0.0.0:9100", cfg.Addr())
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())
}

func TestValidateClampsTokenTTL(t *testing.T) {
	cfg := &Config{TokenSecret: "x", TokenTTL: time.Hour}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MaxTokenTTL, cfg.TokenTTL)
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{TokenSecret: "x"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 500, cfg.MessageMaxLen)
	assert.Equal(t, 4.0, cfg.WalkSpeed)
	assert.Equal(t, "lobby", cfg.CanonicalSlug)
	assert.Equal(t, MaxTokenTTL, cfg.TokenTTL)
}
