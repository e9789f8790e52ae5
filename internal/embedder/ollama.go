package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	host   string
	model  string
	dim    int
	client *http.Client
}

// OllamaConfig holds the settings for an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model, e.g. "all-minilm".
	Model string
	// Dimensions is the model's output length.
	Dimensions int
}

// NewOllamaEmbedder constructs an OllamaEmbedder.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:   cfg.Host,
		model:  cfg.Model,
		dim:    cfg.Dimensions,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Dimensions implements rag.Embedder.
func (e *OllamaEmbedder) Dimensions() int { return e.dim }

// Embed implements rag.Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result ollamaEmbedResponse
	err := postJSON(ctx, e.client, e.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: texts}, &result,
		func() string { return result.Error })
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
