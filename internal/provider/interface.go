// Package provider selects and constructs the chat model behind the
// assistant. Supported backends: Ollama, OpenAI, Azure OpenAI, DeepSeek,
// Google Gemini, and Volcengine Ark.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or a compatible gateway.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendDeepSeek selects the DeepSeek API through its OpenAI-compatible endpoint.
	BackendDeepSeek Backend = "deepseek"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// deepSeekBaseURL is the OpenAI-compatible DeepSeek endpoint.
const deepSeekBaseURL = "https://api.deepseek.com"

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings. BaseURL is optional.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderKeyModel holds settings for backends that need only a key and a
// model name: DeepSeek, Gemini and Ark.
type ProviderKeyModel struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int

	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the block matching
// Backend is read.
type Config struct {
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	DeepSeek    ProviderKeyModel
	Gemini      ProviderKeyModel
	Ark         ProviderKeyModel

	Tuning SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the env var that supplies it.
func (c *Config) Validate() error {
	missing := func(env string) error {
		return fmt.Errorf("provider: %s is required for the %s backend", env, c.Backend)
	}
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		switch {
		case c.AzureOpenAI.APIKey == "":
			return missing("AZURE_OPENAI_API_KEY")
		case c.AzureOpenAI.Endpoint == "":
			return missing("AZURE_OPENAI_ENDPOINT")
		case c.AzureOpenAI.Deployment == "":
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendDeepSeek:
		if c.DeepSeek.APIKey == "" {
			return missing("DEEPSEEK_API_KEY")
		}
		if c.DeepSeek.Model == "" {
			return missing("DEEPSEEK_MODEL")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: ollama, openai, azure, deepseek, gemini, ark)", c.Backend)
	}
	return nil
}

// ModelName returns the model or deployment the config selects.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendDeepSeek:
		return c.DeepSeek.Model
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// isAzureReasoningModel reports whether an Azure deployment serves an
// o-series or codex model. Those reject the temperature parameter.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, p := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, p) {
			return true
		}
	}
	return false
}
