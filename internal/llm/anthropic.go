package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens int64 = 2048

// anthropicClient calls the Anthropic Messages API.
type anthropicClient struct {
	sdk     anthropic.Client
	model   string
	timeout time.Duration
}

func newAnthropicClient(baseURL, apiKey, model string, _, timeoutSeconds int) Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicClient{
		sdk:     anthropic.NewClient(opts...),
		model:   model,
		timeout: timeoutDuration(timeoutSeconds),
	}
}

func (c *anthropicClient) Name() string { return "anthropic:" + c.model }

func (c *anthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic message: no text content returned")
	}
	return sb.String(), nil
}
