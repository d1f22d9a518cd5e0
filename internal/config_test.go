package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadConfig_AppDefaults(t *testing.T) {
	path := writeConfig(t, "backend:\n  url: http://stories.local:5000\n")

	var cfg AppConfig
	require.NoError(t, ReadConfig(path, &cfg))

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "templates/*.html", cfg.TemplateGLOB)
	assert.Equal(t, int64(10485760), cfg.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.CopyConfirmDelay)
	assert.Equal(t, "http://stories.local:5000", cfg.Backend.URL)
	assert.Equal(t, 1, cfg.Backend.RateBurst)
	assert.Equal(t, "story_events", cfg.Kafka.EventTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestReadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\nbackend:\n  url: http://stories.local:5000\n")
	t.Setenv("PORT", "7000")
	t.Setenv("COOKIE_SECRET", "s3cret")
	t.Setenv("STORY_BACKEND_URL", "http://backend:5000")

	var cfg AppConfig
	require.NoError(t, ReadConfig(path, &cfg))

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "s3cret", cfg.CookieSecret)
	assert.Equal(t, "http://backend:5000", cfg.Backend.URL)
}

func TestReadConfig_Worker(t *testing.T) {
	path := writeConfig(t, "kafka:\n  brokers: [\"kafka:9092\"]\n  group: reporters\nreport_period: 30s\n")

	var cfg WorkerConfig
	require.NoError(t, ReadConfig(path, &cfg))

	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "reporters", cfg.Kafka.Group)
	assert.Equal(t, "story_events", cfg.Kafka.EventTopic)
	assert.Equal(t, 30*time.Second, cfg.ReportPeriod)
}

func TestReadConfig_MissingFile(t *testing.T) {
	var cfg AppConfig
	assert.Error(t, ReadConfig(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))
}
