package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the dispatch trainer service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Providers. "auto" picks real providers when keys are present and falls
	// back to mocks otherwise.
	STTProvider    string
	SpeechProvider string

	DeepgramAPIKey    string
	DeepgramWSBaseURL string
	DeepgramModel     string
	DeepgramLanguage  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ChatModel     string
	TTSModel      string
	TTSVoice      string
	TTSSpeed      float64

	DatabaseURL string

	// Pipeline tuning. Defaults mirror the values the trainer was calibrated
	// with; they are exposed as configuration rather than re-derived.
	InterruptionMinChars int
	SilenceTimeoutLow    time.Duration
	SilenceTimeoutMed    time.Duration
	SilenceTimeoutHigh   time.Duration
	SilenceArmDelay      time.Duration
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	SynthPrefetch        int
	DebugCaptureSeconds  int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "dispatchsim"),
		AllowAnyOrigin:    false,
		STTProvider:       envOrDefault("STT_PROVIDER", "auto"),
		SpeechProvider:    envOrDefault("SPEECH_PROVIDER", "auto"),
		DeepgramAPIKey:    envTrimmed("DEEPGRAM_API_KEY"),
		DeepgramWSBaseURL: envOrDefault("DEEPGRAM_WS_BASE_URL", "wss://api.deepgram.com"),
		DeepgramModel:     envOrDefault("DEEPGRAM_MODEL", "nova-2"),
		DeepgramLanguage:  envOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
		OpenAIAPIKey:      envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:     envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		ChatModel:         envOrDefault("CHAT_MODEL", "gpt-4-turbo-preview"),
		TTSModel:          envOrDefault("TTS_MODEL", "tts-1"),
		TTSVoice:          envOrDefault("TTS_VOICE", "nova"),
		TTSSpeed:          1.1,
		DatabaseURL:       envTrimmed("DATABASE_URL"),

		ShutdownTimeout:      15 * time.Second,
		InterruptionMinChars: 2,
		SilenceTimeoutLow:    3 * time.Second,
		SilenceTimeoutMed:    5 * time.Second,
		SilenceTimeoutHigh:   8 * time.Second,
		SilenceArmDelay:      time.Second,
		ReconnectMaxAttempts: 3,
		ReconnectBaseDelay:   time.Second,
		SynthPrefetch:        3,
		DebugCaptureSeconds:  10,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSSpeed, err = floatFromEnv("TTS_SPEED", cfg.TTSSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.InterruptionMinChars, err = intFromEnv("CALL_INTERRUPTION_MIN_CHARS", cfg.InterruptionMinChars)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceTimeoutLow, err = durationFromEnv("CALL_SILENCE_TIMEOUT_LOW", cfg.SilenceTimeoutLow)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceTimeoutMed, err = durationFromEnv("CALL_SILENCE_TIMEOUT_MED", cfg.SilenceTimeoutMed)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceTimeoutHigh, err = durationFromEnv("CALL_SILENCE_TIMEOUT_HIGH", cfg.SilenceTimeoutHigh)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceArmDelay, err = durationFromEnv("CALL_SILENCE_ARM_DELAY", cfg.SilenceArmDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectMaxAttempts, err = intFromEnv("STT_RECONNECT_MAX_ATTEMPTS", cfg.ReconnectMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectBaseDelay, err = durationFromEnv("STT_RECONNECT_BASE_DELAY", cfg.ReconnectBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthPrefetch, err = intFromEnv("SPEECH_SYNTH_PREFETCH", cfg.SynthPrefetch)
	if err != nil {
		return Config{}, err
	}
	cfg.DebugCaptureSeconds, err = intFromEnv("DEBUG_CAPTURE_SECONDS", cfg.DebugCaptureSeconds)
	if err != nil {
		return Config{}, err
	}

	if cfg.InterruptionMinChars < 0 {
		return Config{}, fmt.Errorf("CALL_INTERRUPTION_MIN_CHARS must be >= 0")
	}
	if cfg.SilenceTimeoutLow <= 0 || cfg.SilenceTimeoutMed <= 0 || cfg.SilenceTimeoutHigh <= 0 {
		return Config{}, fmt.Errorf("silence timeouts must be positive")
	}
	if cfg.ReconnectMaxAttempts < 0 {
		return Config{}, fmt.Errorf("STT_RECONNECT_MAX_ATTEMPTS must be >= 0")
	}
	if cfg.ReconnectBaseDelay <= 0 {
		return Config{}, fmt.Errorf("STT_RECONNECT_BASE_DELAY must be positive")
	}
	if cfg.SynthPrefetch <= 0 {
		return Config{}, fmt.Errorf("SPEECH_SYNTH_PREFETCH must be positive")
	}
	if cfg.TTSSpeed < 0.25 || cfg.TTSSpeed > 4.0 {
		return Config{}, fmt.Errorf("TTS_SPEED must be within [0.25, 4.0]")
	}

	return cfg, nil
}

// SilenceTimeoutFor maps a caller cooperation level (0-100) to the silence
// timeout duration: panicked callers re-engage fast, calm callers wait.
func (c Config) SilenceTimeoutFor(cooperationLevel int) time.Duration {
	switch {
	case cooperationLevel < 30:
		return c.SilenceTimeoutLow
	case cooperationLevel < 70:
		return c.SilenceTimeoutMed
	default:
		return c.SilenceTimeoutHigh
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
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
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
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
