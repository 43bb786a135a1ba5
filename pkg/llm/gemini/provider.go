package gemini

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

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-3-flash-preview"

	ChatMessageRoleUser  = "user"
	ChatMessageRoleModel = "model"
)

type GeminiChatParts struct {
	Text string `json:"text"`
}

type GeminiChatContent struct {
	Parts []*GeminiChatParts `json:"parts"`
	Role  string             `json:"role,omitempty"`
}

type GeminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type GeminiChatRequest struct {
	SystemInstruction *GeminiChatContent      `json:"systemInstruction,omitempty"`
	Contents          []*GeminiChatContent    `json:"contents"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// Provider talks to the generativelanguage generateContent endpoint.
type Provider struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

var _ llm.LLMProvider = (*Provider)(nil)

func NewProvider(apiKey, baseURL, model string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Model: p.Model, Temperature: -1}, opts...)

	payload := buildRequest(history, options)
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.BaseURL, options.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return "", parseError(res.StatusCode, resBody)
	}

	if !gjson.ValidBytes(resBody) {
		return "", fmt.Errorf("gemini returned invalid JSON")
	}
	return extractText(resBody), nil
}

func buildRequest(history []llm.Message, options llm.Options) GeminiChatRequest {
	chatContents := make([]*GeminiChatContent, 0, len(history))
	for _, msg := range history {
		chatContents = append(chatContents, &GeminiChatContent{
			Parts: []*GeminiChatParts{{Text: msg.Content}},
			Role:  wireRole(msg.Role),
		})
	}

	payload := GeminiChatRequest{Contents: chatContents}
	if options.SystemInstruction != "" {
		payload.SystemInstruction = &GeminiChatContent{
			Parts: []*GeminiChatParts{{Text: options.SystemInstruction}},
		}
	}

	cfg := &GeminiGenerationConfig{
		TopK:            options.TopK,
		TopP:            options.TopP,
		MaxOutputTokens: options.MaxTokens,
	}
	if options.Temperature >= 0 {
		t := options.Temperature
		cfg.Temperature = &t
	}
	if cfg.Temperature != nil || cfg.TopK > 0 || cfg.TopP > 0 || cfg.MaxOutputTokens > 0 {
		payload.GenerationConfig = cfg
	}
	return payload
}

func wireRole(role string) string {
	switch role {
	case "assistant", ChatMessageRoleModel:
		return ChatMessageRoleModel
	default:
		return ChatMessageRoleUser
	}
}

// extractText joins every text part of the first candidate. A reply with no
// candidates yields "".
func extractText(body []byte) string {
	parts := gjson.GetBytes(body, "candidates.0.content.parts.#.text").Array()
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(part.String())
	}
	return sb.String()
}

func parseError(status int, body []byte) *llm.ProviderError {
	pe := &llm.ProviderError{
		Provider:   "gemini",
		StatusCode: status,
		Class:      llm.ClassifyStatus(status),
		Message:    strings.TrimSpace(string(body)),
	}
	if !gjson.ValidBytes(body) {
		return pe
	}

	apiErr := gjson.GetBytes(body, "error")
	if msg := apiErr.Get("message").String(); msg != "" {
		pe.Message = msg
	}
	apiStatus := apiErr.Get("status").String()
	pe.Reason = apiStatus

	for _, reason := range apiErr.Get("details.#.reason").Array() {
		if r := reason.String(); r != "" {
			pe.Reason = r
			break
		}
	}

	switch {
	case pe.Reason == "API_KEY_INVALID" || apiStatus == "UNAUTHENTICATED":
		pe.Class = llm.ClassUnauthorized
	case strings.Contains(pe.Reason, "BILLING") || apiStatus == "PERMISSION_DENIED":
		pe.Class = llm.ClassForbidden
	case apiStatus == "RESOURCE_EXHAUSTED":
		pe.Class = llm.ClassRateLimited
	}
	return pe
}
