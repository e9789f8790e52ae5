package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/budget"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/config"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Per-backend defaults.
const (
	defaultLocalModel  = "hashing-v1"
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultLocalDimensions matches all-MiniLM-L6-v2, so a corpus can move
	// between the hashing and ollama backends after a rebuild without a
	// schema change.
	defaultLocalDimensions  = 384
	defaultOpenAIDimensions = 1536

	defaultLocalMaxTokens  = 256
	defaultOpenAIMaxTokens = 8191

	defaultTimeout = 30 * time.Second
)

// Config is the resolved embedder configuration.
type Config struct {
	Backend    string `validate:"oneof=hashing ollama openai azure"`
	Model      string `validate:"required"`
	Endpoint   string `validate:"omitempty,url"`
	APIKey     string
	APIVersion string
	Dimensions int           `validate:"gt=0"`
	MaxTokens  int           `validate:"gte=0"`
	Overflow   Overflow      `validate:"oneof=reject truncate"`
	Timeout    time.Duration `validate:"gte=0"`
	Encoding   string

	CacheAddr     string `validate:"omitempty,hostname_port"`
	CachePassword string
	CacheTTL      time.Duration `validate:"gte=0"`
}

// DefaultDimensions returns the vector size the resolved backend produces.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		return defaultLocalDimensions
	}
}

// ResolveBackend returns EMBEDDING_PROVIDER, defaulting to the local
// hashing backend.
func ResolveBackend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "hashing")
}

// ConfigFromEnv resolves a Config from environment variables.
//
//  1. EMBEDDING_PROVIDER: hashing (default), ollama, openai, azure
//  2. EMBEDDING_MODEL / EMBEDDING_DIMENSIONS override backend defaults
//  3. EMBEDDING_API_KEY / EMBEDDING_ENDPOINT override inherited chat credentials
//  4. EMBEDDING_MAX_TOKENS, EMBEDDING_OVERFLOW, EMBEDDING_TIMEOUT, EMBEDDING_ENCODING
//  5. EMBEDDING_CACHE_REDIS_ADDR enables the Redis cache
func ConfigFromEnv() (*Config, error) {
	backend := ResolveBackend()
	cfg := &Config{
		Backend:       backend,
		Dimensions:    DefaultDimensions(backend),
		Overflow:      Overflow(getEnvOrDefault("EMBEDDING_OVERFLOW", string(OverflowReject))),
		Encoding:      getEnvOrDefault("EMBEDDING_ENCODING", budget.DefaultEncoding),
		CacheAddr:     getEnv("EMBEDDING_CACHE_REDIS_ADDR"),
		CachePassword: getEnv("EMBEDDING_CACHE_REDIS_PASSWORD"),
	}

	var err error
	if cfg.Timeout, err = getEnvDuration("EMBEDDING_TIMEOUT", defaultTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvDuration("EMBEDDING_CACHE_TTL", 0); err != nil {
		return nil, err
	}

	switch backend {
	case "hashing":
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultLocalModel)
		cfg.MaxTokens = getEnvInt("EMBEDDING_MAX_TOKENS", defaultLocalMaxTokens)

	case "ollama":
		cfg.Endpoint = getEnv("EMBEDDING_ENDPOINT")
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		cfg.MaxTokens = getEnvInt("EMBEDDING_MAX_TOKENS", defaultLocalMaxTokens)

	case "openai":
		cfg.APIKey = getEnv("EMBEDDING_API_KEY")
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		cfg.Endpoint = getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		cfg.MaxTokens = getEnvInt("EMBEDDING_MAX_TOKENS", defaultOpenAIMaxTokens)

	case "azure":
		cfg.APIKey = getEnv("EMBEDDING_API_KEY")
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		cfg.Endpoint = getEnv("EMBEDDING_ENDPOINT")
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		cfg.MaxTokens = getEnvInt("EMBEDDING_MAX_TOKENS", defaultOpenAIMaxTokens)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: hashing, ollama, openai, azure)", backend)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return cfg, nil
}

// Stack is a fully wrapped embedder plus the resources it owns.
type Stack struct {
	// Embedder is the Guard every caller uses.
	Embedder *Guard
	// Cache is the Redis cache, or nil when caching is disabled.
	Cache *RedisCache
	// Config is the configuration the stack was built from.
	Config *Config
}

// Close releases the cache connection, if any.
func (s *Stack) Close() error {
	if s.Cache != nil {
		return s.Cache.Close()
	}
	return nil
}

// New builds the backend named by cfg, wraps it in the Redis cache when
// configured, and finally in a Guard.
func New(ctx context.Context, cfg *Config, log *slog.Logger) (*Stack, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	CheckModel(cfg, log)

	var backend rag.Embedder
	switch cfg.Backend {
	case "hashing":
		backend = NewHashingEmbedder(cfg.Dimensions)
	case "ollama":
		backend = NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model, Dimensions: cfg.Dimensions})
	case "openai":
		backend = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: cfg.Endpoint, APIKey: cfg.APIKey, Model: cfg.Model, Dimensions: cfg.Dimensions,
		})
	case "azure":
		backend = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: cfg.Endpoint + "/openai", APIKey: cfg.APIKey, Model: cfg.Model,
			Dimensions: cfg.Dimensions, Azure: true, APIVersion: cfg.APIVersion,
		})
	}

	stack := &Stack{Config: cfg}
	if cfg.CacheAddr != "" {
		cache, err := NewRedisCache(ctx, &RedisCacheConfig{
			Addr: cfg.CacheAddr, Password: cfg.CachePassword, TTL: cfg.CacheTTL,
		})
		if err != nil {
			return nil, err
		}
		stack.Cache = cache
		backend = NewCachedEmbedder(backend, cache, cfg.Backend+"/"+cfg.Model, log)
		log.Info("embedder: redis cache enabled", slog.String("addr", cfg.CacheAddr))
	}

	var counter budget.Counter = budget.Heuristic{}
	if cfg.MaxTokens > 0 {
		counter = budget.NewCounter(cfg.Encoding, log)
	}
	guard, err := NewGuard(backend, &GuardConfig{
		MaxTokens: cfg.MaxTokens,
		Overflow:  cfg.Overflow,
		Timeout:   cfg.Timeout,
		Counter:   counter,
		Logger:    log,
	})
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Embedder = guard
	return stack, nil
}

// NewFromEnv is ConfigFromEnv followed by New.
func NewFromEnv(ctx context.Context, log *slog.Logger) (*Stack, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, log)
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("embedder: %s: %w", key, err)
	}
	return d, nil
}
