package factory

import (
	"fmt"

	"entrust-concierge-be/pkg/llm"
	"entrust-concierge-be/pkg/llm/gemini"
	"entrust-concierge-be/pkg/llm/huggingface"
	"entrust-concierge-be/pkg/llm/ollama"
)

const (
	ProviderGemini      = "gemini"
	ProviderOllama      = "ollama"
	ProviderHuggingFace = "huggingface"
)

// NewLLMProvider builds the configured backend. apiKey may be empty: the
// availability monitor, not the factory, decides whether calls are allowed.
func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case ProviderGemini, "":
		return gemini.NewProvider(apiKey, baseURL, modelName), nil
	case ProviderOllama:
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case ProviderHuggingFace:
		return huggingface.NewHuggingFaceProvider(apiKey, baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}

// Credential returns the value whose presence gates availability for a
// provider. Ollama runs locally without a key, so its base URL stands in.
func Credential(providerType, apiKey, baseURL string) string {
	if providerType == ProviderOllama {
		if baseURL == "" {
			return ollama.DefaultBaseURL
		}
		return baseURL
	}
	return apiKey
}
