// Package audit logs one structured line per CLI command invocation: the
// command, the config file it resolved, and the settings that decide which
// model, embedder and corpus backend the run talks to.
//
// Secrets are logged as presence/absence only, never their values.
// Connection strings are logged with the password redacted.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// redaction says how an env var's value may appear in the audit line.
type redaction int

const (
	// plain values are logged as is.
	plain redaction = iota
	// secret values are logged as "set" or "unset".
	secret
	// dsn values are logged with any URL password replaced.
	dsn
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	key string
	how redaction
}

// auditKeys is the ordered list of env vars included in every audit entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"DEEPSEEK_API_KEY", secret},
	{"DEEPSEEK_MODEL", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_DIMENSIONS", plain},
	{"EMBEDDING_API_KEY", secret},
	{"EMBEDDING_CACHE_REDIS_ADDR", plain},
	{"EMBEDDING_CACHE_REDIS_PASSWORD", secret},
	{"CORPUS_BACKEND", plain},
	{"CORPUS_SQLITE_PATH", plain},
	{"DATABASE_URL", dsn},
	{"DB_HOST", plain},
	{"DB_PASSWORD", secret},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"QDRANT_APPROXIMATE", plain},
	{"ALBAQER_API_KEY", secret},
	{"ALBAQER_HISTORY_DB", plain},
	{"ALBAQER_TRUST_PROXY", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LOG_SOURCE", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, sanitise(e.how, os.Getenv(e.key))))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of value for the env var key.
// Unknown keys are treated as plain.
func SanitiseKey(key, value string) string {
	for _, e := range auditKeys {
		if e.key == key {
			return sanitise(e.how, value)
		}
	}
	return valOrUnset(value)
}

func sanitise(how redaction, v string) string {
	switch how {
	case secret:
		return presence(v)
	case dsn:
		return redactDSN(v)
	default:
		return valOrUnset(v)
	}
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// redactDSN masks the password of a URL-style connection string. Values
// that do not parse as URLs are reduced to presence.
func redactDSN(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" {
		return "set"
	}
	return u.Redacted()
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
