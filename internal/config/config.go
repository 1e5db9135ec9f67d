// Package config provides configuration for the meeting agents server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/capitalize-ai/meeting-agents/internal/conversation"
	"github.com/capitalize-ai/meeting-agents/internal/model"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
	NATS      NATSConfig      `yaml:"nats"`
	LLM       LLMConfig       `yaml:"llm"`
	Meeting   MeetingConfig   `yaml:"meeting"`
	Speech    SpeechConfig    `yaml:"speech"`
	Agents    AgentsConfig    `yaml:"agents"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port"             env:"PORT"                    env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"development-secret-change-in-production"`
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"60"`
	Window   time.Duration `yaml:"window"   env:"RATE_LIMIT_WINDOW"   env-default:"1m"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"https://*,http://*"`
	MaxAge         int    `yaml:"max_age"         env:"CORS_MAX_AGE"         env-default:"300"`
}

// Origins returns the allowed origins as a list.
func (c CORSConfig) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"  env:"TRACING_ENABLED"  env-default:"false"`
	Endpoint string `yaml:"endpoint" env:"TRACING_ENDPOINT" env-default:"localhost:4318"`
}

// NATSConfig holds event bus settings.
type NATSConfig struct {
	Enabled  bool   `yaml:"enabled"   env:"NATS_ENABLED"   env-default:"true"`
	URL      string `yaml:"url"       env:"NATS_URL"       env-default:"nats://localhost:4222"`
	CAFile   string `yaml:"ca_file"   env:"NATS_CA_FILE"`
	CertFile string `yaml:"cert_file" env:"NATS_CERT_FILE"`
	KeyFile  string `yaml:"key_file"  env:"NATS_KEY_FILE"`
	Token    string `yaml:"token"     env:"NATS_TOKEN"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	Provider        string `yaml:"provider"          env:"DEFAULT_LLM"       env-default:"anthropic"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"openai_api_key"    env:"OPENAI_API_KEY"`
}

// APIKey returns the key for the configured provider, falling back to
// whichever key is present.
func (c LLMConfig) APIKey() (provider, key string) {
	switch {
	case c.Provider == "openai" && c.OpenAIAPIKey != "":
		return "openai", c.OpenAIAPIKey
	case c.Provider == "anthropic" && c.AnthropicAPIKey != "":
		return "anthropic", c.AnthropicAPIKey
	case c.AnthropicAPIKey != "":
		return "anthropic", c.AnthropicAPIKey
	case c.OpenAIAPIKey != "":
		return "openai", c.OpenAIAPIKey
	}
	return "", ""
}

// MeetingConfig holds orchestrator limits and platform selection.
type MeetingConfig struct {
	// Zero and absent both take the default; negative values are rejected.
	MaxConcurrentMeetings  int           `yaml:"max_concurrent_meetings"   env:"MAX_CONCURRENT_MEETINGS"   env-default:"3"`
	Timeout                time.Duration `yaml:"meeting_timeout"           env:"MEETING_TIMEOUT"           env-default:"120m"`
	DefaultDurationMinutes int           `yaml:"default_duration_minutes"  env:"DEFAULT_DURATION_MINUTES"  env-default:"60"`
	AutoTranscription      bool          `yaml:"enable_auto_transcription" env:"ENABLE_AUTO_TRANSCRIPTION" env-default:"true"`
	SpeakResponses         bool          `yaml:"speak_responses"           env:"SPEAK_RESPONSES"           env-default:"false"`
	Strategy               string        `yaml:"turn_strategy"             env:"TURN_STRATEGY"             env-default:"natural_flow"`
	PreferredPlatform      string        `yaml:"preferred_platform"        env:"PREFERRED_PLATFORM"        env-default:"teams"`
	EnabledPlatforms       string        `yaml:"enabled_platforms"         env:"ENABLED_PLATFORMS"         env-default:"teams,google_meet,zoom,webex"`
	TicketProject          string        `yaml:"ticket_project"            env:"TICKET_PROJECT"            env-default:"MEET"`
	DocSpace               string        `yaml:"doc_space"                 env:"DOC_SPACE"                 env-default:"MEETINGS"`
}

// Platforms parses EnabledPlatforms.
func (c MeetingConfig) Platforms() ([]model.Platform, error) {
	var out []model.Platform
	for _, name := range splitList(c.EnabledPlatforms) {
		p, err := model.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SpeechConfig holds speech provider settings. A provider with a URL streams
// from that websocket sidecar.
type SpeechConfig struct {
	PreferredProvider string `yaml:"preferred_provider" env:"SPEECH_PROVIDER"         env-default:"azure"`
	EnableFallback    bool   `yaml:"enable_fallback"    env:"SPEECH_ENABLE_FALLBACK"  env-default:"true"`
	AzureURL          string `yaml:"azure_url"          env:"SPEECH_AZURE_URL"`
	GoogleCloudURL    string `yaml:"google_cloud_url"   env:"SPEECH_GOOGLE_CLOUD_URL"`
	WhisperURL        string `yaml:"whisper_url"        env:"SPEECH_WHISPER_URL"`
}

// URL returns the sidecar URL configured for p.
func (c SpeechConfig) URL(p model.SpeechProvider) string {
	switch p {
	case model.SpeechAzure:
		return c.AzureURL
	case model.SpeechGoogleCloud:
		return c.GoogleCloudURL
	case model.SpeechWhisper:
		return c.WhisperURL
	}
	return ""
}

// AgentsConfig locates the employee roster.
type AgentsConfig struct {
	RosterPath string `yaml:"roster_path" env:"ROSTER_PATH" env-default:"./roster.yaml"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults. The file is CONFIG_PATH, or ./config.yaml
// when that exists.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit requests and window must be positive"))
	}
	if c.Meeting.MaxConcurrentMeetings <= 0 {
		errs = append(errs, errors.New("meeting.max_concurrent_meetings must be positive"))
	}
	if c.Meeting.Timeout <= 0 {
		errs = append(errs, errors.New("meeting.meeting_timeout must be positive"))
	}
	if c.Meeting.DefaultDurationMinutes <= 0 {
		errs = append(errs, errors.New("meeting.default_duration_minutes must be positive"))
	}
	if _, err := conversation.ParseStrategy(c.Meeting.Strategy); err != nil {
		errs = append(errs, err)
	}
	if p, err := model.ParsePlatform(c.Meeting.PreferredPlatform); err != nil {
		errs = append(errs, err)
	} else if p == "" {
		errs = append(errs, errors.New("meeting.preferred_platform is required"))
	}
	if _, err := c.Meeting.Platforms(); err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseSpeechProvider(c.Speech.PreferredProvider); err != nil {
		errs = append(errs, err)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
