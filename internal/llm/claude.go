package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hpungsan/plate/internal/config"
)

// Claude calls the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewClaude creates a Claude client. The SDK's own retries are disabled so a
// job makes exactly one call.
func NewClaude(cfg config.LLMConfig, timeout time.Duration, opts ...option.RequestOption) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is not configured")
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(opts...)
	return &Claude{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
	}, nil
}

// Name returns the provider name.
func (c *Claude) Name() string { return ProviderClaude }

// Complete sends one message. The assistant turn is prefilled with "{" so the
// reply is a bare JSON object.
func (c *Claude) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	blocks := []anthropic.ContentBlockParamUnion{}
	if req.ImageURL != "" {
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: req.ImageURL}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Text))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")),
		},
		Temperature: anthropic.Float(0),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude api call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from claude api")
	}
	return "{" + text.String(), nil
}
