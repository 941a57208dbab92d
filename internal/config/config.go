// Package config provides service configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (COACH_* overrides, DATABASE_URL)
//  2. Config file (./config.yaml or /etc/coach/config.yaml)
//  3. Default values
//
// Security: secrets (API keys, postgres password) are masked in MarshalJSON
// and String so the loaded configuration can be logged safely.
//
// Error handling uses sentinel errors checked with errors.Is(); validation
// wraps them with context via fmt.Errorf("%w: ...").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKeys indicates no client API keys are configured.
	ErrMissingAPIKeys = errors.New("missing API keys")

	// ErrInvalidAPIKey indicates a configured client API key is unusable.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidSessionLimits indicates session TTL or cap values are out of range.
	ErrInvalidSessionLimits = errors.New("invalid session limits")

	// ErrInvalidRateLimits indicates rate-limit budgets are out of range.
	ErrInvalidRateLimits = errors.New("invalid rate limits")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidRetrieval indicates retrieval settings are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval settings")

	// ErrInvalidPostgres indicates the PostgreSQL settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL settings")

	// ErrInvalidAudioLimit indicates the audio upload cap is out of range.
	ErrInvalidAudioLimit = errors.New("invalid audio limit")
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 supports truncation to 768 dimensions via
// OutputDimensionality, which matches the pgvector schema in db/migrations.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// Config stores service configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HTTP server
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`

	// Client credentials. Each entry is "<id>:<secret>"; a bare secret gets
	// an id derived from its position ("key-0", "key-1", ...).
	APIKeys     []string `mapstructure:"api_keys" json:"api_keys"` // SENSITIVE: masked in MarshalJSON
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`

	// Session lifecycle
	SessionTTL        time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
	MaxSessions       int           `mapstructure:"max_sessions" json:"max_sessions"`
	MaxSessionsPerKey int           `mapstructure:"max_sessions_per_key" json:"max_sessions_per_key"`
	MaxHistory        int           `mapstructure:"max_history" json:"max_history"`

	// Per-credential rate limits (fixed one-hour windows)
	SessionsPerHour int `mapstructure:"sessions_per_hour" json:"sessions_per_hour"`
	MessagesPerHour int `mapstructure:"messages_per_hour" json:"messages_per_hour"`
	VoiceConcurrent int `mapstructure:"voice_concurrent" json:"voice_concurrent"`

	// Conversation
	HistoryWindow int           `mapstructure:"history_window" json:"history_window"`
	TurnTimeout   time.Duration `mapstructure:"turn_timeout" json:"turn_timeout"`

	// Retrieval
	RetrievalEnabled bool          `mapstructure:"retrieval_enabled" json:"retrieval_enabled"`
	RetrievalTimeout time.Duration `mapstructure:"retrieval_timeout" json:"retrieval_timeout"`
	RetrievalTopK    int           `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Voice
	VoiceEnabled  bool  `mapstructure:"voice_enabled" json:"voice_enabled"`
	AudioMaxBytes int64 `mapstructure:"audio_max_bytes" json:"audio_max_bytes"`

	// Passage store (only required when retrieval is enabled)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/coach")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults plus env suffice.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", "/etc/coach"})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Comma-separated env values arrive as a single element.
	cfg.APIKeys = splitList(cfg.APIKeys)
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8080)

	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("temperature", 0.7)

	viper.SetDefault("session_ttl", 90*time.Minute)
	viper.SetDefault("sweep_interval", 5*time.Minute)
	viper.SetDefault("max_sessions", 1000)
	viper.SetDefault("max_sessions_per_key", 50)
	viper.SetDefault("max_history", 100)

	viper.SetDefault("sessions_per_hour", 20)
	viper.SetDefault("messages_per_hour", 100)
	viper.SetDefault("voice_concurrent", 10)

	viper.SetDefault("history_window", 12)
	viper.SetDefault("turn_timeout", 60*time.Second)

	viper.SetDefault("retrieval_enabled", true)
	viper.SetDefault("retrieval_timeout", 5*time.Second)
	viper.SetDefault("retrieval_top_k", 4)

	viper.SetDefault("voice_enabled", true)
	viper.SetDefault("audio_max_bytes", int64(10*1024*1024))

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "coach")
	viper.SetDefault("postgres_db_name", "coach")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("cors_origins", []string{})
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit and the genai client, not via
// Viper; validation only checks its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("host", "COACH_HOST")
	mustBind("port", "COACH_PORT")
	mustBind("api_keys", "COACH_API_KEYS")
	mustBind("cors_origins", "COACH_CORS_ORIGINS")
	mustBind("model_name", "COACH_MODEL_NAME")
	mustBind("embedder_model", "COACH_EMBEDDER_MODEL")
	mustBind("session_ttl", "COACH_SESSION_TTL")
	mustBind("max_sessions", "COACH_MAX_SESSIONS")
	mustBind("max_sessions_per_key", "COACH_MAX_SESSIONS_PER_KEY")
	mustBind("max_history", "COACH_MAX_HISTORY")
	mustBind("retrieval_enabled", "COACH_RETRIEVAL_ENABLED")
	mustBind("voice_enabled", "COACH_VOICE_ENABLED")
	mustBind("postgres_password", "COACH_POSTGRES_PASSWORD")
}

// splitList expands comma-separated entries so env vars like
// COACH_API_KEYS="a,b" behave like a YAML list.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// maskedValue is the placeholder for masked sensitive data. Full-width block
// characters avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight or
// fewer characters are fully masked; longer ones keep the first and last two
// characters for debug utility. This defends against accidental logging, not
// against a compromised log store.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.APIKeys = make([]string, len(c.APIKeys))
	for i, k := range c.APIKeys {
		id, secret := SplitAPIKey(k, i)
		a.APIKeys[i] = id + ":" + maskSecret(secret)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". A name already containing "/" is
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}

// SplitAPIKey splits a configured "<id>:<secret>" entry. A bare secret gets
// a positional id so rate limiting and session ownership still have a stable
// credential identity without logging the secret itself.
func SplitAPIKey(entry string, pos int) (id, secret string) {
	if i := strings.IndexByte(entry, ':'); i > 0 {
		return entry[:i], entry[i+1:]
	}
	return fmt.Sprintf("key-%d", pos), entry
}
