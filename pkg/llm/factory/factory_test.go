package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"", "gemini", false},
		{ProviderGemini, "gemini", false},
		{ProviderOllama, "ollama", false},
		{ProviderHuggingFace, "huggingface", false},
		{"openai", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewLLMProvider(tt.provider, "", "", "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestCredential(t *testing.T) {
	assert.Equal(t, "", Credential(ProviderGemini, "", ""))
	assert.Equal(t, "key", Credential(ProviderGemini, "key", ""))
	assert.Equal(t, "http://localhost:11434", Credential(ProviderOllama, "", ""))
	assert.Equal(t, "http://gpu:11434", Credential(ProviderOllama, "", "http://gpu:11434"))
}
