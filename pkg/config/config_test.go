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

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 50, cfg.Sync.ChunkSize)
	assert.Equal(t, time.Second, cfg.Sync.Debounce)
	assert.Equal(t, time.Second, cfg.Sync.LockRetryDelay)
	assert.Equal(t, 6, cfg.Sync.LockMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Sync.InsertTimeout)
	assert.Equal(t, "students", cfg.Sync.Dataset)
	assert.Equal(t, "Admin Users", cfg.AdminImport.Dataset)
	assert.Equal(t, "admission_changes", cfg.ChangeFeed.Channel)
	assert.True(t, cfg.ChangeFeed.Enabled)
	assert.Equal(t, 7*24*time.Hour, cfg.Admissions.FastFillingWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CSV_FILE_PATH", "/srv/data/My Mock Data.csv")
	t.Setenv("SYNC_CHUNK_SIZE", "25")
	t.Setenv("SYNC_DEBOUNCE", "500ms")
	t.Setenv("SYNC_INSERT_TIMEOUT", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/data/My Mock Data.csv", cfg.Sync.FilePath)
	assert.Equal(t, 25, cfg.Sync.ChunkSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Sync.InsertTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("-5s", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
