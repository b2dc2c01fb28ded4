package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback bool
		want     bool
	}{
		{name: "true literal", value: "true", want: true},
		{name: "numeric one", value: "1", want: true},
		{name: "yes mixed case", value: " YeS ", want: true},
		{name: "no", value: "no", fallback: true, want: false},
		{name: "garbage keeps default", value: "maybe", fallback: true, want: true},
		{name: "unset keeps default", value: "", fallback: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BIOPROTOCOL_TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, GetEnvBool("BIOPROTOCOL_TEST_BOOL", tt.fallback))
		})
	}
}

func TestGetEnvNumbersAndDurations(t *testing.T) {
	t.Setenv("BIOPROTOCOL_TEST_INT", "42")
	t.Setenv("BIOPROTOCOL_TEST_INT64", "1048576")
	t.Setenv("BIOPROTOCOL_TEST_DURATION", "90s")
	t.Setenv("BIOPROTOCOL_TEST_BAD_INT", "forty-two")

	assert.Equal(t, 42, GetEnvInt("BIOPROTOCOL_TEST_INT", 1))
	assert.Equal(t, int64(1048576), GetEnvInt64("BIOPROTOCOL_TEST_INT64", 1))
	assert.Equal(t, 90*time.Second, GetEnvDuration("BIOPROTOCOL_TEST_DURATION", time.Second))
	assert.Equal(t, 7, GetEnvInt("BIOPROTOCOL_TEST_BAD_INT", 7))
	assert.Equal(t, "fallback", GetEnvStr("BIOPROTOCOL_TEST_UNSET", "fallback"))
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Setenv("BIOPROTOCOL_TEST_LEVEL", "WARNING")
	assert.Equal(t, slog.LevelWarn, GetEnvLogLevel("BIOPROTOCOL_TEST_LEVEL", slog.LevelInfo))

	t.Setenv("BIOPROTOCOL_TEST_LEVEL", "verbose")
	assert.Equal(t, slog.LevelInfo, GetEnvLogLevel("BIOPROTOCOL_TEST_LEVEL", slog.LevelInfo))
}

func TestParseCommaSeparatedList(t *testing.T) {
	assert.Equal(t, []string{}, ParseCommaSeparatedList(""))
	assert.Equal(t, []string{"a", "b"}, ParseCommaSeparatedList(" a, ,b ,"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bioprotocol.yaml")

	content := `
publisher:
  gateway_url: "https://api.elifesciences.org"
  content_type: "application/vnd.elife.bioprotocol+json"
partner:
  base_url: "https://dev.bio-protocol.org/api"
queue:
  brokers: ["localhost:9092", "localhost:9093"]
  topic: article-updates
  group_id: bioprotocol
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := LoadFile(path)

	assert.Equal(t, "https://api.elifesciences.org", cfg.Publisher.GatewayURL)
	assert.Equal(t, "application/vnd.elife.bioprotocol+json", cfg.Publisher.ContentType)
	assert.Equal(t, "https://dev.bio-protocol.org/api", cfg.Partner.BaseURL)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Queue.Brokers)
	assert.Equal(t, "article-updates", cfg.Queue.Topic)
	assert.Equal(t, "bioprotocol", cfg.Queue.GroupID)
}

func TestLoadFile_MissingOrInvalid(t *testing.T) {
	cfg := LoadFile("/nonexistent/bioprotocol.yaml")
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Partner.BaseURL)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("publisher: [unterminated"), 0o600))

	cfg = LoadFile(path)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Publisher.GatewayURL)
}
