package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Meeting.MaxConcurrentMeetings)
	assert.Equal(t, 120*time.Minute, cfg.Meeting.Timeout)
	assert.Equal(t, 60, cfg.Meeting.DefaultDurationMinutes)
	assert.True(t, cfg.Meeting.AutoTranscription)
	assert.Equal(t, "teams", cfg.Meeting.PreferredPlatform)
	assert.Equal(t, "azure", cfg.Speech.PreferredProvider)
	assert.True(t, cfg.Speech.EnableFallback)

	platforms, err := cfg.Meeting.Platforms()
	require.NoError(t, err)
	assert.Equal(t, model.Platforms, platforms)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := writeConfig(t, `
meeting:
  max_concurrent_meetings: 5
  preferred_platform: zoom
  enabled_platforms: "zoom, webex"
speech:
  preferred_provider: whisper
  whisper_url: ws://localhost:9000/stream
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("MAX_CONCURRENT_MEETINGS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Meeting.MaxConcurrentMeetings, "env wins over yaml")
	assert.Equal(t, "zoom", cfg.Meeting.PreferredPlatform)
	assert.Equal(t, "ws://localhost:9000/stream", cfg.Speech.URL(model.SpeechWhisper))
	assert.Empty(t, cfg.Speech.URL(model.SpeechAzure))

	platforms, err := cfg.Meeting.Platforms()
	require.NoError(t, err)
	assert.Equal(t, []model.Platform{model.PlatformZoom, model.PlatformWebex}, platforms)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
meeting:
  max_concurrent_meetings: -1
  preferred_platform: skype
  turn_strategy: loudest_wins
`)
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_meetings")
	assert.Contains(t, err.Error(), "skype")
	assert.Contains(t, err.Error(), "loudest_wins")
}

func TestLoadZeroCapacityTakesDefault(t *testing.T) {
	path := writeConfig(t, `
meeting:
  max_concurrent_meetings: 0
`)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Meeting.MaxConcurrentMeetings, "zero is unset, not a ceiling of zero")
}

func TestLLMAPIKey(t *testing.T) {
	tests := []struct {
		name         string
		cfg          LLMConfig
		wantProvider string
	}{
		{"preferred anthropic", LLMConfig{Provider: "anthropic", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "anthropic"},
		{"preferred openai", LLMConfig{Provider: "openai", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "openai"},
		{"falls back to present key", LLMConfig{Provider: "openai", AnthropicAPIKey: "a"}, "anthropic"},
		{"no keys", LLMConfig{Provider: "anthropic"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, _ := tt.cfg.APIKey()
			assert.Equal(t, tt.wantProvider, provider)
		})
	}
}

func TestCORSOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		CORSConfig{AllowedOrigins: " https://a.example ,,https://b.example"}.Origins())
}
