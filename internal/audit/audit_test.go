package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key, value, want string
	}{
		{"OPENAI_API_KEY", "sk-abc123", "set"},
		{"OPENAI_API_KEY", "", "unset"},
		{"DB_PASSWORD", "hunter2", "set"},
		{"MODEL_PROVIDER", "deepseek", "deepseek"},
		{"MODEL_PROVIDER", "", "unset"},
		{"CORPUS_BACKEND", "qdrant", "qdrant"},
		{"SOME_OTHER_VAR", "x", "x"},
		{"DATABASE_URL", "postgres://albaqer:s3cret@db:5432/shop?sslmode=disable", "postgres://albaqer:xxxxx@db:5432/shop?sslmode=disable"},
		{"DATABASE_URL", "host=db password=s3cret", "set"},
		{"DATABASE_URL", "", "unset"},
	}
	for _, tc := range cases {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%s, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.albaqer/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.albaqer/config.yaml" {
			t.Errorf("expected '~/.albaqer/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("ALBAQER_API_KEY", "top-secret-key")
	t.Setenv("CORPUS_BACKEND", "sqlite")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewTextHandler(&buf, nil)), "serve", "")

	out := buf.String()
	if strings.Contains(out, "top-secret-key") {
		t.Errorf("secret leaked into audit line: %s", out)
	}
	if !strings.Contains(out, "ALBAQER_API_KEY=set") || !strings.Contains(out, "CORPUS_BACKEND=sqlite") {
		t.Errorf("audit line = %s", out)
	}
}
