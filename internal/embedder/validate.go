package embedder

import (
	"log/slog"
	"strings"
)

// knownChatModelPrefixes identify chat/completion models that are not
// embedding models.
var knownChatModelPrefixes = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen", "gemini",
}

// fixedDimensionModels lists embedding models whose output length cannot be
// changed by request.
var fixedDimensionModels = map[string]int{
	"all-minilm":             384,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"bge-m3":                 1024,
	"text-embedding-ada-002": 1536,
}

// looksLikeChatModel reports whether model resembles a chat model name.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// CheckModel logs warnings for configurations that will run but produce
// poor or unusable vectors: a chat model configured as the embedding model,
// or a dimension that disagrees with a fixed-size model. It returns the
// number of warnings emitted.
func CheckModel(cfg *Config, log *slog.Logger) int {
	warnings := 0
	if cfg.Backend != "hashing" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. all-minilm, text-embedding-3-small"),
		)
		warnings++
	}
	base, _, _ := strings.Cut(strings.ToLower(cfg.Model), ":")
	if want, ok := fixedDimensionModels[base]; ok && want != cfg.Dimensions {
		log.Warn("embedder: EMBEDDING_DIMENSIONS disagrees with the model's output size",
			slog.String("model", cfg.Model),
			slog.Int("configured", cfg.Dimensions),
			slog.Int("model_dimensions", want),
		)
		warnings++
	}
	return warnings
}
