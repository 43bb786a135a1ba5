package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"entrust-concierge-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestChatSendsDirectiveHistoryAndConfig(t *testing.T) {
	var captured []byte
	var apiKey, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		apiKey = r.Header.Get("x-goog-api-key")
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi there."},{"text":"\n\nHow can I help?"}]}}]}`))
	}))
	defer srv.Close()

	p := NewProvider("test-key", srv.URL, "gemini-test")
	reply, err := p.Chat(context.Background(),
		[]llm.Message{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Welcome"},
			{Role: "user", Content: "Quote?"},
		},
		llm.WithSystemInstruction("You are the concierge."),
		llm.WithTemperature(0.3),
		llm.WithTopK(40),
		llm.WithTopP(0.95),
	)
	require.NoError(t, err)

	assert.Equal(t, "Hi there.\n\nHow can I help?", reply)
	assert.Equal(t, "test-key", apiKey)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", path)

	body := gjson.ParseBytes(captured)
	assert.Equal(t, "You are the concierge.", body.Get("systemInstruction.parts.0.text").String())
	assert.Equal(t, []string{"user", "model", "user"}, resultStrings(body.Get("contents.#.role").Array()))
	assert.Equal(t, 0.3, body.Get("generationConfig.temperature").Float())
	assert.Equal(t, int64(40), body.Get("generationConfig.topK").Int())
	assert.Equal(t, 0.95, body.Get("generationConfig.topP").Float())
}

func TestChatEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	reply, err := NewProvider("k", srv.URL, "").Chat(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "", reply)
}

func TestChatClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		want   llm.ErrorClass
		reason string
	}{
		{
			name:   "invalid key reported as 400",
			status: http.StatusBadRequest,
			body: map[string]any{"error": map[string]any{
				"code": 400, "message": "API key not valid.", "status": "INVALID_ARGUMENT",
				"details": []map[string]any{{"reason": "API_KEY_INVALID"}},
			}},
			want:   llm.ClassUnauthorized,
			reason: "API_KEY_INVALID",
		},
		{
			name:   "plain 401",
			status: http.StatusUnauthorized,
			body:   map[string]any{"error": map[string]any{"status": "UNAUTHENTICATED", "message": "nope"}},
			want:   llm.ClassUnauthorized,
		},
		{
			name:   "billing",
			status: http.StatusForbidden,
			body: map[string]any{"error": map[string]any{
				"status": "PERMISSION_DENIED", "message": "billing required",
				"details": []map[string]any{{"reason": "BILLING_DISABLED"}},
			}},
			want:   llm.ClassForbidden,
			reason: "BILLING_DISABLED",
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   map[string]any{"error": map[string]any{"status": "RESOURCE_EXHAUSTED", "message": "slow down"}},
			want:   llm.ClassRateLimited,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]any{"error": map[string]any{"status": "INTERNAL", "message": "boom"}},
			want:   llm.ClassUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			_, err := NewProvider("k", srv.URL, "").Chat(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
			require.Error(t, err)
			assert.Equal(t, tt.want, llm.ClassOf(err))

			var pe *llm.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, pe.Reason)
			}
		})
	}
}

func TestChatNetworkFailureIsUnclassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewProvider("k", url, "").Chat(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	require.Error(t, err)
	assert.Equal(t, llm.ClassUnknown, llm.ClassOf(err))
}

func resultStrings(results []gjson.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.String()
	}
	return out
}
