package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the CFD assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	IndexMode        string

	AllowAnyOrigin bool
	AllowedOrigins []string

	LogLevel  string
	LogFormat string

	CompletionProvider string
	CompletionTimeout  time.Duration
	SystemPrompt       string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int

	Analysis AnalysisConfig

	// SecretKey is accepted for deployment parity with the web frontend; no
	// handler signs anything with it.
	SecretKey   string
	DatabaseURL string
}

// AnalysisConfig holds the image grid-summarizer geometry and thresholds.
type AnalysisConfig struct {
	SampleStride      int
	PressureThreshold float64
	ModerateThreshold float64
	HighThreshold     float64
	GridRows          int
	GridCols          int
	CanvasWidth       int
	CanvasHeight      int
	MaxUploadBytes    int64
	MaxPixels         int64
}

const (
	IndexModeJSON = "json"
	IndexModePage = "page"
)

const defaultSystemPrompt = "You are an expert in Computational Fluid Dynamics."

var defaultAllowedOrigins = []string{
	"https://cfd-bot-final.vercel.app",
	"http://localhost:3000",
}

// Defaults returns the configuration used when no environment is set.
func Defaults() Config {
	return Config{
		BindAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		MetricsNamespace:   "cfdbot",
		IndexMode:          IndexModeJSON,
		AllowedOrigins:     append([]string(nil), defaultAllowedOrigins...),
		LogLevel:           "info",
		LogFormat:          "text",
		CompletionProvider: "auto",
		CompletionTimeout:  60 * time.Second,
		SystemPrompt:       defaultSystemPrompt,
		OpenAIModel:        "gpt-3.5-turbo",
		AnthropicModel:     "claude-3-7-sonnet-latest",
		AnthropicMaxTokens: 1024,
		Analysis: AnalysisConfig{
			SampleStride:      10,
			PressureThreshold: 0.3,
			ModerateThreshold: 0.5,
			HighThreshold:     0.8,
			GridRows:          5,
			GridCols:          3,
			CanvasWidth:       400,
			CanvasHeight:      300,
			MaxUploadBytes:    16 << 20,
			MaxPixels:         1 << 26,
		},
	}
}

// Load reads the optional config file and environment variables and applies
// safe defaults. Environment values win over the file.
func Load() (Config, error) {
	cfg := Defaults()

	if path := stringsTrimSpace("APP_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.IndexMode = strings.ToLower(envOrDefault("APP_INDEX_MODE", cfg.IndexMode))
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.CompletionProvider = strings.ToLower(envOrDefault("COMPLETION_PROVIDER", cfg.CompletionProvider))
	cfg.SystemPrompt = envOrDefault("CHAT_SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.OpenAIAPIKey = stringsTrimSpace("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = stringsTrimSpace("OPENAI_BASE_URL")
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.AnthropicAPIKey = stringsTrimSpace("ANTHROPIC_API_KEY")
	cfg.AnthropicModel = envOrDefault("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.SecretKey = stringsTrimSpace("SECRET_KEY")
	cfg.DatabaseURL = stringsTrimSpace("DATABASE_URL")

	if origins := stringsTrimSpace("APP_CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	var err error
	if port := stringsTrimSpace("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("PORT parse error: %w", err)
		}
		if n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("PORT must be in [1,65535]")
		}
		cfg.BindAddr = ":" + port
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AnthropicMaxTokens, err = intFromEnv("ANTHROPIC_MAX_TOKENS", cfg.AnthropicMaxTokens)
	if err != nil {
		return Config{}, err
	}

	a := &cfg.Analysis
	if a.SampleStride, err = intFromEnv("ANALYSIS_SAMPLE_STRIDE", a.SampleStride); err != nil {
		return Config{}, err
	}
	if a.PressureThreshold, err = floatFromEnv("ANALYSIS_PRESSURE_THRESHOLD", a.PressureThreshold); err != nil {
		return Config{}, err
	}
	if a.ModerateThreshold, err = floatFromEnv("ANALYSIS_MODERATE_THRESHOLD", a.ModerateThreshold); err != nil {
		return Config{}, err
	}
	if a.HighThreshold, err = floatFromEnv("ANALYSIS_HIGH_THRESHOLD", a.HighThreshold); err != nil {
		return Config{}, err
	}
	if a.GridRows, err = intFromEnv("ANALYSIS_GRID_ROWS", a.GridRows); err != nil {
		return Config{}, err
	}
	if a.GridCols, err = intFromEnv("ANALYSIS_GRID_COLS", a.GridCols); err != nil {
		return Config{}, err
	}
	if a.CanvasWidth, err = intFromEnv("ANALYSIS_CANVAS_WIDTH", a.CanvasWidth); err != nil {
		return Config{}, err
	}
	if a.CanvasHeight, err = intFromEnv("ANALYSIS_CANVAS_HEIGHT", a.CanvasHeight); err != nil {
		return Config{}, err
	}
	if a.MaxUploadBytes, err = int64FromEnv("ANALYSIS_MAX_UPLOAD_BYTES", a.MaxUploadBytes); err != nil {
		return Config{}, err
	}
	if a.MaxPixels, err = int64FromEnv("ANALYSIS_MAX_PIXELS", a.MaxPixels); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.IndexMode {
	case IndexModeJSON, IndexModePage:
	default:
		return fmt.Errorf("APP_INDEX_MODE must be %q or %q", IndexModeJSON, IndexModePage)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	switch c.CompletionProvider {
	case "auto", "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("COMPLETION_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("COMPLETION_PROVIDER=anthropic but ANTHROPIC_API_KEY is not set")
		}
	default:
		return fmt.Errorf("invalid COMPLETION_PROVIDER: %q (expected auto|openai|anthropic|mock)", c.CompletionProvider)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	if c.AnthropicMaxTokens <= 0 {
		return fmt.Errorf("ANTHROPIC_MAX_TOKENS must be positive")
	}

	a := c.Analysis
	if a.SampleStride <= 0 {
		return fmt.Errorf("ANALYSIS_SAMPLE_STRIDE must be positive")
	}
	if a.GridRows <= 0 || a.GridCols <= 0 {
		return fmt.Errorf("ANALYSIS_GRID_ROWS and ANALYSIS_GRID_COLS must be positive")
	}
	if a.CanvasWidth <= 0 || a.CanvasHeight <= 0 {
		return fmt.Errorf("ANALYSIS_CANVAS_WIDTH and ANALYSIS_CANVAS_HEIGHT must be positive")
	}
	if a.MaxUploadBytes <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_UPLOAD_BYTES must be positive")
	}
	if a.MaxPixels <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_PIXELS must be positive")
	}
	if a.PressureThreshold < 0 || a.PressureThreshold >= a.ModerateThreshold ||
		a.ModerateThreshold >= a.HighThreshold || a.HighThreshold > 1 {
		return fmt.Errorf("analysis thresholds must satisfy 0 <= pressure < moderate < high <= 1")
	}
	return nil
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

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
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

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
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
