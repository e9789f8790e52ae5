// Package embedder provides rag.Embedder implementations and the wrappers
// every deployment runs them behind.
//
// Backends: a local hashing embedder, Ollama's /api/embed, and the OpenAI
// (or Azure OpenAI) embeddings API, the last two over plain HTTP. Wrappers:
// CachedEmbedder (Redis) and Guard (length policy, timeout, dimension
// check, normalization). NewFromEnv assembles the stack.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// postJSON sends body as JSON and decodes the response into out. The
// response is decoded before the status check so backend error messages
// reach the caller; errMsg extracts that message from out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, errMsg func() string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil {
			if m := errMsg(); m != "" {
				msg = m
			}
		}
		return fmt.Errorf("%s", msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}
