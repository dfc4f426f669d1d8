package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	// Completion API (OpenAI-compatible wire protocol)
	CompletionAPIKey  string
	CompletionBaseURL string
	Model             string
	// Zero means the completion call is not bounded by a timeout.
	CompletionTimeout time.Duration
	// Optional OAuth2 client-credentials in front of the completion API
	CompletionTokenURL     string
	CompletionClientID     string
	CompletionClientSecret string
	CompletionScopes       []string
	// Persona / site content
	PersonaFile string
	// Simulated typing latency before each reply
	TypingDelayMin time.Duration
	TypingDelayMax time.Duration
	// Page sessions
	SessionTTL     time.Duration
	ChatRatePerMin int
	// Logging
	LogLevel  string
	LogFormat string
	// Problems found while reading the environment. Load has no logger yet,
	// so callers report these once theirs is built.
	Warnings []string
}

type warnings []string

func (w *warnings) addf(format string, args ...any) {
	if w != nil {
		*w = append(*w, fmt.Sprintf(format, args...))
	}
}

func Load() Config {
	_ = godotenv.Load()
	var warns warnings
	cfg := Config{
		Port:                   getEnvDefault("PORT", "8080"),
		AllowedOrigin:          getEnvDefault("ALLOWED_ORIGIN", "*"),
		CompletionAPIKey:       getEnvDefault("COMPLETION_API_KEY", os.Getenv("COHERE_API_KEY")),
		CompletionBaseURL:      getEnvDefault("COMPLETION_BASE_URL", "https://api.cohere.ai/compatibility/v1"),
		Model:                  getEnvDefault("COMPLETION_MODEL", "command-r-plus"),
		CompletionTimeout:      getEnvDurationDefault("COMPLETION_TIMEOUT", 0, &warns),
		CompletionTokenURL:     os.Getenv("COMPLETION_TOKEN_URL"),
		CompletionClientID:     os.Getenv("COMPLETION_CLIENT_ID"),
		CompletionClientSecret: os.Getenv("COMPLETION_CLIENT_SECRET"),
		CompletionScopes:       getEnvListDefault("COMPLETION_SCOPES", nil),
		PersonaFile:            getEnvDefault("PERSONA_FILE", "./prompts/persona.yaml"),
		TypingDelayMin:         getEnvDurationDefault("TYPING_DELAY_MIN", 500*time.Millisecond, &warns),
		TypingDelayMax:         getEnvDurationDefault("TYPING_DELAY_MAX", 1500*time.Millisecond, &warns),
		SessionTTL:             getEnvDurationDefault("SESSION_TTL", 30*time.Minute, &warns),
		ChatRatePerMin:         getEnvIntDefault("CHAT_RATE_PER_MIN", 30, &warns),
		LogLevel:               getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:              getEnvDefault("LOG_FORMAT", "json"),
	}
	if cfg.TypingDelayMax < cfg.TypingDelayMin {
		cfg.TypingDelayMax = cfg.TypingDelayMin
	}
	if cfg.CompletionAPIKey == "" && cfg.CompletionTokenURL == "" {
		warns.addf("COMPLETION_API_KEY is not set; every reply will be the fallback message until provided")
	}
	cfg.Warnings = warns
	return cfg
}

// UsesClientCredentials reports whether the completion API should be called
// with an OAuth2 client-credentials token instead of the static key.
func (c Config) UsesClientCredentials() bool {
	return c.CompletionTokenURL != "" && c.CompletionClientID != ""
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int, w *warnings) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		w.addf("%s=%q is not an integer; using %d", key, v, def)
	}
	return def
}

// getEnvDurationDefault accepts Go durations ("750ms", "2s") or a bare
// integer interpreted as milliseconds.
func getEnvDurationDefault(key string, def time.Duration, w *warnings) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	w.addf("%s=%q is not a duration; using %s", key, v, def)
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
