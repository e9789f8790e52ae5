package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	path, err := Load("/nonexistent/path/config.yaml", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: deepseek
  temperature: 0.3
  deepseek:
    model: deepseek-chat
embedding:
  provider: ollama
  model: all-minilm
  dimensions: 384
  overflow: truncate
  timeout: 10s
corpus:
  backend: postgres
database:
  host: db.internal
  port: 5432
  name: albaqer
  user: albaqer
chunking:
  size: 800
  overlap: 150
retrieval:
  min_score: 0.35
logging:
  level: debug
  format: text
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_TEMPERATURE", "DEEPSEEK_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "EMBEDDING_OVERFLOW", "EMBEDDING_TIMEOUT",
		"CORPUS_BACKEND", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "RAG_MIN_SCORE",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":       "deepseek",
		"MODEL_TEMPERATURE":    "0.3",
		"DEEPSEEK_MODEL":       "deepseek-chat",
		"EMBEDDING_PROVIDER":   "ollama",
		"EMBEDDING_MODEL":      "all-minilm",
		"EMBEDDING_DIMENSIONS": "384",
		"EMBEDDING_OVERFLOW":   "truncate",
		"EMBEDDING_TIMEOUT":    "10s",
		"CORPUS_BACKEND":       "postgres",
		"DB_HOST":              "db.internal",
		"DB_PORT":              "5432",
		"DB_NAME":              "albaqer",
		"DB_USER":              "albaqer",
		"CHUNK_SIZE":           "800",
		"CHUNK_OVERLAP":        "150",
		"RAG_MIN_SCORE":        "0.35",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("corpus:\n  backend: qdrant\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CORPUS_BACKEND", "sqlite")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("CORPUS_BACKEND"); got != "sqlite" {
		t.Errorf("CORPUS_BACKEND: expected env override %q, got %q", "sqlite", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_ExplicitPathWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.yaml")
	other := filepath.Join(dir, "other.yaml")
	for _, p := range []string{explicit, other} {
		if err := os.WriteFile(p, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("ALBAQER_CONFIG", other)

	if got := resolveConfigPath(explicit); got != explicit {
		t.Errorf("resolveConfigPath = %q, want %q", got, explicit)
	}
	if got := resolveConfigPath(""); got != other {
		t.Errorf("resolveConfigPath(\"\") = %q, want ALBAQER_CONFIG %q", got, other)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DB_NAME=from_dotenv\nDB_USER=dotenv_user\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DB_NAME", "from_env")
	t.Setenv("DB_USER", "")
	os.Unsetenv("DB_USER")

	if err := LoadDotEnv(path, slog.Default()); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("DB_NAME"); got != "from_env" {
		t.Errorf("DB_NAME overridden: %q", got)
	}
	if got := os.Getenv("DB_USER"); got != "dotenv_user" {
		t.Errorf("DB_USER = %q, want dotenv_user", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), slog.Default()); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{float64(float32(0.3)), "0.3"},
		{1.0, "1"},
		{2.5, "2.5"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in); got != tt.want {
			t.Errorf("floatStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_ZeroMinScoreIsExported(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("retrieval:\n  min_score: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RAG_MIN_SCORE", "")
	os.Unsetenv("RAG_MIN_SCORE")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("RAG_MIN_SCORE"); got != "0" {
		t.Errorf("RAG_MIN_SCORE = %q, want %q", got, "0")
	}
}
