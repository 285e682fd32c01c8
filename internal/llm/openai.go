package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"
)

// openAIClient calls an OpenAI-compatible chat-completion endpoint.
type openAIClient struct {
	sdk         openai.Client
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

func newOpenAIClient(baseURL, apiKey, model string, temperature float64, _, timeoutSeconds int) Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAIClient{
		sdk:         openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   2048,
		timeout:     timeoutDuration(timeoutSeconds),
	}
}

func (c *openAIClient) Name() string { return "openai:" + c.model }

// isThinkingModel matches OpenAI's "o<int>-*" reasoning model family, which
// rejects max_tokens in favor of max_completion_tokens.
func isThinkingModel(model string) bool {
	model = strings.ToLower(model)
	if !strings.HasPrefix(model, "o") {
		return false
	}
	rest := model[1:]
	i := 0
	for ; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
	}
	return i > 0 && i < len(rest) && rest[i] == '-'
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: param.NewOpt(c.temperature),
	}
	if isThinkingModel(c.model) {
		params.MaxCompletionTokens = param.NewOpt(c.maxTokens)
	} else {
		params.MaxTokens = param.NewOpt(c.maxTokens)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
