// Package config loads application configuration with multi-source
// priority: environment variables override the config file, which
// overrides defaults.
//
// The config file lives at ~/.juniper/config.yaml; every key can also be
// set through a JUNIPER_* environment variable (dots become underscores).
// GEMINI_API_KEY is read directly by Genkit and only checked for presence
// here. Validation uses sentinel errors checked with errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidDataDir indicates the data directory is invalid.
	ErrInvalidDataDir = errors.New("invalid data directory")

	// ErrInvalidChunking indicates the chunking parameters are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidRetrieval indicates the retrieval defaults are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval parameters")

	// ErrInvalidRetry indicates the retry policy is out of range.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrInvalidRateLimit indicates the provider rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultGeminiModel is the default generation model.
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Config stores application configuration. API keys never appear here;
// Genkit reads them from the environment.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider"`       // "gemini" (default) or "ollama"
	ModelName     string `mapstructure:"model_name"`     // generation model
	EmbedderModel string `mapstructure:"embedder_model"` // embedding model

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host"`

	// Storage
	DataDir string `mapstructure:"data_dir"` // agents.json + per-agent stores

	// Chunking
	MaxChunkChars int `mapstructure:"max_chunk_chars"`
	OverlapChars  int `mapstructure:"overlap_chars"`

	// Retrieval defaults, overridable per ask
	TopK            int     `mapstructure:"top_k"`
	MinScore        float64 `mapstructure:"min_score"`
	MaxPromptChunks int     `mapstructure:"max_prompt_chunks"`

	// Provider call policy
	MaxRetries      int           `mapstructure:"max_retries"`
	EmbedTimeout    time.Duration `mapstructure:"embed_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"` // 0 disables rate limiting

	// Crawling
	CrawlMaxPages int `mapstructure:"crawl_max_pages"`

	// Observability
	TraceEndpoint string `mapstructure:"trace_endpoint"` // OTLP HTTP endpoint, empty disables tracing
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".juniper")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("JUNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", DefaultGeminiModel)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("data_dir", filepath.Join(configDir, "data"))

	v.SetDefault("max_chunk_chars", 1200)
	v.SetDefault("overlap_chars", 200)

	v.SetDefault("top_k", 4)
	v.SetDefault("min_score", 0.0)
	v.SetDefault("max_prompt_chunks", 8)

	v.SetDefault("max_retries", 2)
	v.SetDefault("embed_timeout", 15*time.Second)
	v.SetDefault("generate_timeout", 2*time.Minute)
	v.SetDefault("requests_per_sec", 0.0)

	v.SetDefault("crawl_max_pages", 20)

	v.SetDefault("trace_endpoint", "")
}

// Validate checks configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must be an http(s) URL", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", ErrInvalidDataDir)
	}

	if c.MaxChunkChars < 100 || c.MaxChunkChars > 100_000 {
		return fmt.Errorf("%w: max_chunk_chars must be between 100 and 100000, got %d",
			ErrInvalidChunking, c.MaxChunkChars)
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChunkChars {
		return fmt.Errorf("%w: overlap_chars must be in [0, max_chunk_chars), got %d",
			ErrInvalidChunking, c.OverlapChars)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: top_k must be between 1 and 100, got %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.MinScore < -1 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be within [-1, 1], got %g", ErrInvalidRetrieval, c.MinScore)
	}
	if c.MaxPromptChunks < 0 {
		return fmt.Errorf("%w: max_prompt_chunks cannot be negative, got %d",
			ErrInvalidRetrieval, c.MaxPromptChunks)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: max_retries must be between 0 and 10, got %d", ErrInvalidRetry, c.MaxRetries)
	}
	if c.EmbedTimeout <= 0 || c.GenerateTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidRetry)
	}

	if c.RequestsPerSec < 0 {
		return fmt.Errorf("%w: requests_per_sec cannot be negative, got %g",
			ErrInvalidRateLimit, c.RequestsPerSec)
	}

	return nil
}
