package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/config"
	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Config selects and configures a corpus backend.
type Config struct {
	Backend    string `validate:"oneof=memory sqlite postgres qdrant"`
	SQLitePath string
	// PostgresDSN is required for the postgres backend.
	PostgresDSN string `validate:"required_if=Backend postgres"`
	Qdrant      QdrantConfig
}

// ConfigFromEnv resolves a Config from environment variables.
//
//   - CORPUS_BACKEND: sqlite (default), memory, postgres, qdrant
//   - CORPUS_SQLITE_PATH: defaults to ~/.albaqer/corpus.db
//   - DATABASE_URL, or DB_HOST/DB_PORT/DB_NAME/DB_USER/DB_PASSWORD/DB_SSLMODE
//   - QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION, QDRANT_API_KEY, QDRANT_TLS
//   - QDRANT_APPROXIMATE: "true" trades exact ranking for HNSW search speed
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Backend:     getEnvOrDefault("CORPUS_BACKEND", "sqlite"),
		SQLitePath:  os.Getenv("CORPUS_SQLITE_PATH"),
		PostgresDSN: PostgresDSNFromEnv(),
		Qdrant: QdrantConfig{
			Host:        os.Getenv("QDRANT_HOST"),
			Alias:       os.Getenv("QDRANT_COLLECTION"),
			APIKey:      os.Getenv("QDRANT_API_KEY"),
			UseTLS:      os.Getenv("QDRANT_TLS") == "true",
			Approximate: os.Getenv("QDRANT_APPROXIMATE") == "true",
		},
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corpus: QDRANT_PORT: %w", err)
		}
		cfg.Qdrant.Port = port
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	return cfg, nil
}

// PostgresDSNFromEnv returns DATABASE_URL, or a URL assembled from the DB_*
// variables when DB_HOST is set, or "".
func PostgresDSNFromEnv() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, getEnvOrDefault("DB_PORT", "5432")),
		Path:   "/" + getEnvOrDefault("DB_NAME", "albaqer_gemstone_ecommerce_db"),
	}
	if user := os.Getenv("DB_USER"); user != "" {
		if pw := os.Getenv("DB_PASSWORD"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	q.Set("sslmode", getEnvOrDefault("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects the backend named by cfg for vectors of length dim.
func Open(ctx context.Context, cfg *Config, dim int, log *slog.Logger) (rag.CorpusStore, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Backend {
	case "memory":
		log.Info("corpus: using in-memory store", slog.Int("dimensions", dim))
		return NewMemory(dim), nil

	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			var err error
			if path, err = DefaultSQLitePath(); err != nil {
				return nil, err
			}
		}
		s, err := OpenSQLite(ctx, path, dim)
		if err != nil {
			return nil, err
		}
		log.Info("corpus: using sqlite store", slog.String("path", path), slog.Int("dimensions", dim))
		return s, nil

	case "postgres":
		p, err := OpenPostgres(ctx, cfg.PostgresDSN, dim)
		if err != nil {
			return nil, err
		}
		log.Info("corpus: using postgres store", slog.Int("dimensions", dim))
		return p, nil

	case "qdrant":
		q, err := OpenQdrant(ctx, &cfg.Qdrant, dim)
		if err != nil {
			return nil, err
		}
		log.Info("corpus: using qdrant store",
			slog.String("host", cfg.Qdrant.Host),
			slog.String("alias", cfg.Qdrant.Alias),
			slog.Int("dimensions", dim),
		)
		return q, nil

	default:
		return nil, fmt.Errorf("corpus: unknown backend %q (valid: memory, sqlite, postgres, qdrant)", cfg.Backend)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
