// Package tracing wires Langfuse into the Eino callback system so every
// assistant turn, tool call and model request is traced. Tracing is opt-in:
// without LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY nothing is set up.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/version"
)

// defaultHost is a self-hosted Langfuse on the default port.
const defaultHost = "http://localhost:3000"

// traceName labels every trace emitted by this binary.
const traceName = "albaqer-assistant"

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY. ok is false when either key is missing.
func ConfigFromEnv() (cfg *Config, ok bool) {
	cfg = &Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, false
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	return cfg, true
}

// Setup builds the Langfuse callback handler from the environment. The
// returned flush function must be called before process exit so buffered
// traces are sent. When Langfuse is not configured it returns nil, nil, false.
func Setup() (callbacks.Handler, func(), bool) {
	cfg, ok := ConfigFromEnv()
	if !ok {
		return nil, nil, false
	}
	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      traceName,
		Release:   version.Version,
	})
	return handler, flush, true
}
