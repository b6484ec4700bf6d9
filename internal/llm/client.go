package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	defaultMaxTokens   = 2400
	defaultTemperature = 0.0
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	api   openai.Client
	model string
	log   *zap.Logger
}

func NewClient(apiKey string, baseURL string, model string, log *zap.Logger) *Client {
	api := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"),
	)
	return &Client{
		api:   api,
		model: model,
		log:   log,
	}
}

// ChatCompletion sends a system+user exchange and returns the assistant
// text. Transient API failures are retried with exponential backoff.
func (c *Client) ChatCompletion(ctx context.Context, system string, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(defaultMaxTokens),
	}

	var content string
	operation := func() error {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			c.log.Warn("chat completion request failed", zap.Error(err))
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat completion returned no choices"))
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return backoff.Permanent(fmt.Errorf("chat completion returned empty content"))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 8 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return content, nil
}
