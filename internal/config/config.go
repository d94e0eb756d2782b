package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/civicvoice/internal/settings"
)

// Recognizer modes.
const (
	RecognizerSimulated = "simulated"
	RecognizerClient    = "client"
)

// Config contains all runtime settings for the voice-control service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	SessionRetention         time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	VoiceLanguageCode        string
	VoiceUserName            string
	VoiceRecognizer          string
	VoiceRecognitionDelay    time.Duration
	VoiceClientListenTimeout time.Duration
	VoiceFeedbackClearDelay  time.Duration
	VoiceSimulatedTranscript string
	VoiceNavigationTimeout   time.Duration

	DatabaseURL             string
	JournalSessionCap       int
	RedisURL                string
	NavigationChannelPrefix string

	LogLevel  string
	LogFormat string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "civicvoice"),
		AllowAnyOrigin:           false,
		VoiceLanguageCode:        strings.ToLower(envOrDefault("VOICE_LANGUAGE_CODE", settings.DefaultLanguage)),
		VoiceUserName:            envOrDefault("VOICE_USER_NAME", "Jun"),
		VoiceRecognizer:          strings.ToLower(envOrDefault("VOICE_RECOGNIZER", RecognizerSimulated)),
		VoiceSimulatedTranscript: envOrDefault("VOICE_SIMULATED_TRANSCRIPT", "Smart help me navigate to home page"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		JournalSessionCap:        200,
		RedisURL:                 stringsTrimSpace("REDIS_URL"),
		NavigationChannelPrefix:  envOrDefault("NAVIGATION_CHANNEL_PREFIX", "civicvoice:navigation"),
		LogLevel:                 envOrDefault("LOG_LEVEL", "info"),
		LogFormat:                envOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		SessionRetention:         10 * time.Minute,
		VoiceRecognitionDelay:    2 * time.Second,
		// Client recognizers get longer to push a transcript before the
		// attempt is abandoned as not understood.
		VoiceClientListenTimeout: 10 * time.Second,
		VoiceFeedbackClearDelay:  5 * time.Second,
		VoiceNavigationTimeout:   3 * time.Second,
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_SESSION_INACTIVITY_TIMEOUT", &cfg.SessionInactivityTimeout},
		{"APP_SESSION_RETENTION", &cfg.SessionRetention},
		{"VOICE_RECOGNITION_DELAY", &cfg.VoiceRecognitionDelay},
		{"VOICE_CLIENT_LISTEN_TIMEOUT", &cfg.VoiceClientListenTimeout},
		{"VOICE_FEEDBACK_CLEAR_DELAY", &cfg.VoiceFeedbackClearDelay},
		{"VOICE_NAVIGATION_TIMEOUT", &cfg.VoiceNavigationTimeout},
	}
	for _, d := range durations {
		v, err := durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	var err error
	cfg.JournalSessionCap, err = intFromEnv("JOURNAL_SESSION_CAP", cfg.JournalSessionCap)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.SessionRetention < 0 {
		return fmt.Errorf("APP_SESSION_RETENTION must be >= 0")
	}
	if c.JournalSessionCap <= 0 {
		return fmt.Errorf("JOURNAL_SESSION_CAP must be positive")
	}
	if _, ok := settings.LookupLanguage(c.VoiceLanguageCode); !ok {
		return fmt.Errorf("VOICE_LANGUAGE_CODE %q is not a supported language", c.VoiceLanguageCode)
	}
	switch c.VoiceRecognizer {
	case RecognizerSimulated, RecognizerClient:
	default:
		return fmt.Errorf("invalid VOICE_RECOGNIZER: %q (expected %s|%s)", c.VoiceRecognizer, RecognizerSimulated, RecognizerClient)
	}
	if c.VoiceRecognitionDelay <= 0 {
		return fmt.Errorf("VOICE_RECOGNITION_DELAY must be positive")
	}
	if c.VoiceClientListenTimeout <= 0 {
		return fmt.Errorf("VOICE_CLIENT_LISTEN_TIMEOUT must be positive")
	}
	if c.VoiceFeedbackClearDelay <= 0 {
		return fmt.Errorf("VOICE_FEEDBACK_CLEAR_DELAY must be positive")
	}
	if c.VoiceNavigationTimeout <= 0 {
		return fmt.Errorf("VOICE_NAVIGATION_TIMEOUT must be positive")
	}
	return nil
}

// ListenTimeout is the delay before a recognition attempt resolves, which
// depends on where transcripts come from.
func (c Config) ListenTimeout() time.Duration {
	if c.VoiceRecognizer == RecognizerClient {
		return c.VoiceClientListenTimeout
	}
	return c.VoiceRecognitionDelay
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
