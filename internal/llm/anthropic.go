package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

const (
	defaultModel          = "claude-sonnet-4-6"
	defaultMaxTokens      = 4096
	defaultRequestTimeout = 60 * time.Second
)

// Options configures an AnthropicClient.
type Options struct {
	Model       string        // Defaults to claude-sonnet-4-6
	APIKey      string        // Falls back to the SDK's environment lookup when empty
	BaseURL     string        // Optional alternate endpoint
	MaxTokens   int           // Default response cap, 4096 when zero
	Temperature float64       // Default sampling temperature
	Timeout     time.Duration // Per-request timeout, 60s when zero
}

// AnthropicClient is the Client implementation backed by the Anthropic API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64

	mu    sync.Mutex
	usage Usage
}

// NewAnthropicClient creates a client with the given options.
func NewAnthropicClient(opts Options) *AnthropicClient {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	reqOpts = append(reqOpts, option.WithRequestTimeout(timeout))

	return &AnthropicClient{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Complete sends one message request and concatenates the text blocks of
// the response. Token counts from the API are added to the running total.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	if temperature > 0 {
		params.Temperature = param.NewOpt(temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := &Response{
		Text:         text.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	c.mu.Lock()
	c.usage.InputTokens += result.InputTokens
	c.usage.OutputTokens += result.OutputTokens
	c.mu.Unlock()

	return result, nil
}

// TotalUsage returns tokens accumulated since construction or the last reset.
func (c *AnthropicClient) TotalUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// ResetUsage zeroes the accumulated counters.
func (c *AnthropicClient) ResetUsage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage = Usage{}
}

var _ Client = (*AnthropicClient)(nil)
