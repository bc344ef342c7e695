package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageTotal(t *testing.T) {
	u := Usage{InputTokens: 120, OutputTokens: 45}
	if got := u.Total(); got != 165 {
		t.Errorf("Total() = %d, expected 165", got)
	}
}

func TestNewAnthropicClientDefaults(t *testing.T) {
	client := NewAnthropicClient(Options{})
	assert.Equal(t, "claude-sonnet-4-6", client.Model())
}

// fakeAnthropic serves a canned messages-API response and captures the
// last request body.
func fakeAnthropic(t *testing.T, text string, inputTokens, outputTokens int) (*httptest.Server, *map[string]any) {
	t.Helper()

	var lastRequest map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&lastRequest); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-6",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": inputTokens, "output_tokens": outputTokens},
		})
	}))
	t.Cleanup(server.Close)

	return server, &lastRequest
}

func TestAnthropicClientComplete(t *testing.T) {
	server, lastRequest := fakeAnthropic(t, "hello from the model", 12, 7)

	client := NewAnthropicClient(Options{APIKey: "test-key", BaseURL: server.URL})

	resp, err := client.Complete(context.Background(), Request{
		System:    "be brief",
		Prompt:    "say hello",
		MaxTokens: 64,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello from the model", resp.Text)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)

	// The request carried our prompt and cap
	require.NotNil(t, *lastRequest)
	assert.EqualValues(t, 64, (*lastRequest)["max_tokens"])
}

func TestAnthropicClientUsageAccumulates(t *testing.T) {
	server, _ := fakeAnthropic(t, "ok", 10, 5)

	client := NewAnthropicClient(Options{APIKey: "test-key", BaseURL: server.URL})
	ctx := context.Background()

	_, err := client.Complete(ctx, Request{Prompt: "one"})
	require.NoError(t, err)
	_, err = client.Complete(ctx, Request{Prompt: "two"})
	require.NoError(t, err)

	usage := client.TotalUsage()
	assert.Equal(t, 20, usage.InputTokens)
	assert.Equal(t, 10, usage.OutputTokens)
	assert.Equal(t, 30, usage.Total())

	client.ResetUsage()
	assert.Equal(t, Usage{}, client.TotalUsage())
}
