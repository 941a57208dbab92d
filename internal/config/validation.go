package config

import (
	"fmt"
	"os"
	"slices"
	"time"
)

const minAPIKeyLength = 16

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrInvalidModelName)
	}

	if len(c.APIKeys) == 0 {
		return fmt.Errorf("%w: set COACH_API_KEYS or api_keys in config.yaml", ErrMissingAPIKeys)
	}
	for i, entry := range c.APIKeys {
		_, secret := SplitAPIKey(entry, i)
		if len(secret) < minAPIKeyLength {
			return fmt.Errorf("%w: entry %d is shorter than %d characters",
				ErrInvalidAPIKey, i, minAPIKeyLength)
		}
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: temperature must be between 0.0 and 2.0, got %.2f",
			ErrInvalidModelName, c.Temperature)
	}

	if c.SessionTTL < time.Minute {
		return fmt.Errorf("%w: session_ttl must be at least 1m, got %s", ErrInvalidSessionLimits, c.SessionTTL)
	}
	if c.SweepInterval < time.Second {
		return fmt.Errorf("%w: sweep_interval must be at least 1s, got %s", ErrInvalidSessionLimits, c.SweepInterval)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrInvalidSessionLimits, c.MaxSessions)
	}
	if c.MaxSessionsPerKey < 1 || c.MaxSessionsPerKey > c.MaxSessions {
		return fmt.Errorf("%w: max_sessions_per_key must be between 1 and max_sessions (%d), got %d",
			ErrInvalidSessionLimits, c.MaxSessions, c.MaxSessionsPerKey)
	}
	if c.MaxHistory < 2 {
		return fmt.Errorf("%w: max_history must be at least 2, got %d", ErrInvalidSessionLimits, c.MaxHistory)
	}

	if c.SessionsPerHour < 1 || c.MessagesPerHour < 1 {
		return fmt.Errorf("%w: per-hour budgets must be positive (sessions %d, messages %d)",
			ErrInvalidRateLimits, c.SessionsPerHour, c.MessagesPerHour)
	}
	if c.VoiceConcurrent < 1 {
		return fmt.Errorf("%w: voice_concurrent must be positive, got %d",
			ErrInvalidRateLimits, c.VoiceConcurrent)
	}

	if c.HistoryWindow < 1 || c.HistoryWindow > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidHistoryWindow, c.HistoryWindow)
	}
	if c.TurnTimeout < time.Second {
		return fmt.Errorf("%w: turn_timeout must be at least 1s, got %s",
			ErrInvalidHistoryWindow, c.TurnTimeout)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 10 {
		return fmt.Errorf("%w: retrieval_top_k must be between 1 and 10, got %d",
			ErrInvalidRetrieval, c.RetrievalTopK)
	}
	if c.RetrievalTimeout < 100*time.Millisecond {
		return fmt.Errorf("%w: retrieval_timeout must be at least 100ms, got %s",
			ErrInvalidRetrieval, c.RetrievalTimeout)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidRetrieval)
	}

	if c.AudioMaxBytes < 1 || c.AudioMaxBytes > 100*1024*1024 {
		return fmt.Errorf("%w: audio_max_bytes must be between 1 and 100MiB, got %d",
			ErrInvalidAudioLimit, c.AudioMaxBytes)
	}

	// Passage store settings only matter when retrieval is on.
	if c.RetrievalEnabled {
		if err := c.validatePostgres(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres password must be set", ErrInvalidPostgres)
	}

	// Deprecated allow/prefer SSL modes are excluded.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: ssl mode %q is not valid, must be one of: %v",
			ErrInvalidPostgres, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
