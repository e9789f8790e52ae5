// Package config loads albaqer configuration into the process environment.
// Precedence, lowest first: defaults → YAML file → .env file → real env vars.
// Every runtime component reads env vars, so a YAML file or .env file is
// optional.
//
// YAML search order:
//  1. --config CLI flag (explicit path)
//  2. ALBAQER_CONFIG environment variable
//  3. ~/.albaqer/config.yaml
//  4. ./albaqer.yaml
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML document. Keys mirror the env var names.
type Config struct {
	// Model configures the chat model used by the assistant.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedder stack.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Corpus selects and configures the corpus backend.
	Corpus CorpusConfig `yaml:"corpus"`

	// Database is the relational store holding knowledge_base and, for the
	// postgres backend, the vectors.
	Database DatabaseConfig `yaml:"database"`

	// Qdrant configures the qdrant backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Chunking configures ingestion chunk sizes.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Retrieval configures caller-facing defaults.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures assistant chat history.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	Provider    string       `yaml:"provider"`
	MaxTokens   int          `yaml:"max_tokens"`
	Temperature float32      `yaml:"temperature"`
	Ollama      OllamaConfig `yaml:"ollama"`
	OpenAI      OpenAIConfig `yaml:"openai"`
	Azure       AzureConfig  `yaml:"azure"`
	DeepSeek    KeyModel     `yaml:"deepseek"`
	Gemini      KeyModel     `yaml:"gemini"`
	Ark         KeyModel     `yaml:"ark"`
}

// OllamaConfig holds Ollama settings shared by chat and embedding.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI settings. BaseURL targets compatible gateways.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI settings.
type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// KeyModel is the settings shape of providers needing only a key and model.
type KeyModel struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is hashing, ollama, openai or azure.
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	// MaxTokens is the per-text input budget.
	MaxTokens int `yaml:"max_tokens"`
	// Overflow is reject or truncate.
	Overflow string `yaml:"overflow"`
	// Timeout is a Go duration string, e.g. "30s".
	Timeout string `yaml:"timeout"`
	// Encoding is the tiktoken encoding used to count tokens.
	Encoding string      `yaml:"encoding"`
	Cache    CacheConfig `yaml:"cache"`
}

// CacheConfig holds the Redis embedding cache settings.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	TTL           string `yaml:"ttl"`
}

// CorpusConfig selects the corpus backend.
type CorpusConfig struct {
	// Backend is memory, sqlite, postgres or qdrant.
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// QdrantConfig holds Qdrant settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`
	TLS        bool   `yaml:"tls"`

	// Approximate switches searches from exact scoring to the HNSW index.
	Approximate bool `yaml:"approximate"`
}

// ChunkingConfig holds chunk sizes in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds caller-facing retrieval defaults.
type RetrievalConfig struct {
	TopK       int `yaml:"top_k"`
	MaxSources int `yaml:"max_sources"`
	// MinScore is a pointer so "min_score: 0" is kept rather than skipped.
	MinScore *float64 `yaml:"min_score"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// APIKey is the Bearer token required on /api/*. Prefer ALBAQER_API_KEY.
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig holds chat history settings.
type HistoryConfig struct {
	// DBPath is the SQLite path, or "disabled".
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML fields to env vars.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return floatStr(float64(c.Model.Temperature)) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"DEEPSEEK_API_KEY", func(c *Config) string { return c.Model.DeepSeek.APIKey }},
	{"DEEPSEEK_MODEL", func(c *Config) string { return c.Model.DeepSeek.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_MAX_TOKENS", func(c *Config) string { return intStr(c.Embedding.MaxTokens) }},
	{"EMBEDDING_OVERFLOW", func(c *Config) string { return c.Embedding.Overflow }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"EMBEDDING_ENCODING", func(c *Config) string { return c.Embedding.Encoding }},
	{"EMBEDDING_CACHE_REDIS_ADDR", func(c *Config) string { return c.Embedding.Cache.RedisAddr }},
	{"EMBEDDING_CACHE_REDIS_PASSWORD", func(c *Config) string { return c.Embedding.Cache.RedisPassword }},
	{"EMBEDDING_CACHE_TTL", func(c *Config) string { return c.Embedding.Cache.TTL }},
	{"CORPUS_BACKEND", func(c *Config) string { return c.Corpus.Backend }},
	{"CORPUS_SQLITE_PATH", func(c *Config) string { return c.Corpus.SQLitePath }},
	{"DATABASE_URL", func(c *Config) string { return c.Database.URL }},
	{"DB_HOST", func(c *Config) string { return c.Database.Host }},
	{"DB_PORT", func(c *Config) string { return intStr(c.Database.Port) }},
	{"DB_NAME", func(c *Config) string { return c.Database.Name }},
	{"DB_USER", func(c *Config) string { return c.Database.User }},
	{"DB_PASSWORD", func(c *Config) string { return c.Database.Password }},
	{"DB_SSLMODE", func(c *Config) string { return c.Database.SSLMode }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"QDRANT_APPROXIMATE", func(c *Config) string { return boolStr(c.Qdrant.Approximate) }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RAG_MAX_SOURCES", func(c *Config) string { return intStr(c.Retrieval.MaxSources) }},
	{"RAG_MIN_SCORE", func(c *Config) string { return floatPtrStr(c.Retrieval.MinScore) }},
	{"ALBAQER_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"ALBAQER_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"ALBAQER_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"ALBAQER_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads the YAML config file and applies non-empty values to env vars
// that are not already set. It returns the loaded path, or "" if no file
// was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		// Zero values render as "" and are skipped; an explicit pointer
		// zero such as min_score renders as "0" and is applied.
		v := m.value(&cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// LoadDotEnv loads KEY=value pairs from path (default ".env") into the
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string, log *slog.Logger) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded dotenv file", slog.String("path", path))
	return nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ALBAQER_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".albaqer", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("albaqer.yaml"); err == nil {
		return "albaqer.yaml"
	}
	return ""
}

// intStr returns "" for zero.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr returns "" for zero and trims trailing zeros.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// floatPtrStr returns "" for nil and the shortest decimal form otherwise,
// including "0".
func floatPtrStr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// boolStr returns "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
