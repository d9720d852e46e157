package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marketintel/pkg/intel"
)

// Environment variable names.
const (
	EnvFinnhubAPIKey     = "FINNHUB_API_KEY"
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvFinnhubBaseURL    = "FINNHUB_BASE_URL"
	EnvGeminiBaseURL     = "GEMINI_BASE_URL"
	EnvGeminiModel       = "GEMINI_MODEL"
	EnvHost              = "MARKETINTEL_HOST"
	EnvPort              = "MARKETINTEL_PORT"
	EnvLogDir            = "MARKETINTEL_LOG_DIR"
	EnvHTTPTimeout       = "MARKETINTEL_HTTP_TIMEOUT"
	EnvGenerationTimeout = "MARKETINTEL_GENERATION_TIMEOUT"
)

const (
	defaultHost              = "127.0.0.1"
	defaultPort              = 8000
	defaultHTTPTimeout       = 10 * time.Second
	defaultGenerationTimeout = 60 * time.Second
)

// Config holds the server configuration. Missing API keys are not a load
// error; each request reports them instead.
type Config struct {
	Host   string
	Port   int
	LogDir string

	Finnhub FinnhubConfig
	Gemini  GeminiConfig
}

// FinnhubConfig holds market-data provider settings.
type FinnhubConfig struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
}

// GeminiConfig holds generation provider settings.
type GeminiConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	GenerationTimeout time.Duration
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the .env file.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	port, err := getEnvAsInt(EnvPort, defaultPort)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getEnvAsDuration(EnvHTTPTimeout, defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	generationTimeout, err := getEnvAsDuration(EnvGenerationTimeout, defaultGenerationTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:   getEnv(EnvHost, defaultHost),
		Port:   port,
		LogDir: getEnv(EnvLogDir, ""),
		Finnhub: FinnhubConfig{
			APIKey:      strings.TrimSpace(os.Getenv(EnvFinnhubAPIKey)),
			BaseURL:     getEnv(EnvFinnhubBaseURL, intel.DefaultFinnhubBaseURL),
			HTTPTimeout: httpTimeout,
		},
		Gemini: GeminiConfig{
			APIKey:            strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)),
			BaseURL:           getEnv(EnvGeminiBaseURL, intel.DefaultGeminiBaseURL),
			Model:             getEnv(EnvGeminiModel, intel.DefaultGeminiModel),
			GenerationTimeout: generationTimeout,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would prevent the server from starting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", EnvPort, c.Port)
	}
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%s must not be empty", EnvHost)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IntelOptions maps the configuration onto service options.
func (c *Config) IntelOptions(logger *slog.Logger) intel.Options {
	return intel.Options{
		FinnhubAPIKey:     c.Finnhub.APIKey,
		FinnhubBaseURL:    c.Finnhub.BaseURL,
		GeminiAPIKey:      c.Gemini.APIKey,
		GeminiBaseURL:     c.Gemini.BaseURL,
		GeminiModel:       c.Gemini.Model,
		HTTPTimeout:       c.Finnhub.HTTPTimeout,
		GenerationTimeout: c.Gemini.GenerationTimeout,
		Logger:            logger,
	}
}

// loadEnvFile loads the first .env found in the working directory or next to
// the executable. A missing file is not an error; an unparsable one is.
func loadEnvFile() error {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, valueStr, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, valueStr, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, valueStr)
	}
	return duration, nil
}
