package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"entrust-concierge-be/pkg/llm"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://router.huggingface.co/v1"

// HuggingFaceProvider uses the OpenAI-compatible inference router.
type HuggingFaceProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.LLMProvider = (*HuggingFaceProvider)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
}

func NewHuggingFaceProvider(apiKey, baseURL, model string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HuggingFaceProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

func (p *HuggingFaceProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.Apply(llm.Options{
		Model:       p.model,
		MaxTokens:   500,
		Temperature: 0.7,
	}, options...)

	messages := make([]chatMessage, 0, len(history)+1)
	if opts.SystemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemInstruction})
	}
	for _, m := range history {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Content})
	}

	jsonData, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	// The router answers either {"error": "text"} or the OpenAI envelope
	// {"error": {"message", "type", "code"}}, sometimes with a 200.
	if errBody := gjson.GetBytes(body, "error"); resp.StatusCode != http.StatusOK || errBody.Exists() {
		return "", p.providerError(resp.StatusCode, body, errBody)
	}

	return gjson.GetBytes(body, "choices.0.message.content").String(), nil
}

func (p *HuggingFaceProvider) providerError(status int, body []byte, errBody gjson.Result) error {
	pe := &llm.ProviderError{
		Provider:   p.Name(),
		StatusCode: status,
		Class:      llm.ClassifyStatus(status),
		Message:    string(body),
	}
	if errBody.IsObject() {
		pe.Message = errBody.Get("message").String()
		pe.Reason = errBody.Get("code").String()
		if pe.Reason == "" {
			pe.Reason = errBody.Get("type").String()
		}
	} else if errBody.Exists() {
		pe.Message = errBody.String()
	}
	return pe
}
