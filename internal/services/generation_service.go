package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// GenerationClient produces model completions for the analysis stage.
type GenerationClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type OpenAIGenerationClient struct {
	client openai.Client
	config config.GenerationConfig
	logger *logger.Logger
}

func NewOpenAIGenerationClient(cfg config.GenerationConfig, log *logger.Logger) *OpenAIGenerationClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerationClient{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: log,
	}
}

// Complete runs one chat completion with bounded retries. Each attempt gets
// its own timeout so a stalled attempt cannot consume the whole retry window.
func (generation *OpenAIGenerationClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	attempts := 0

	operation := func() (string, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, generation.config.Timeout)
		defer cancel()

		completion, err := generation.client.Chat.Completions.New(attemptCtx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(generation.config.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(userPrompt),
			},
			MaxCompletionTokens: param.NewOpt(int64(generation.config.MaxTokens)),
			Temperature:         param.NewOpt(generation.config.Temperature),
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}
		return completion.Choices[0].Message.Content, nil
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(generation.config.MaxRetries+1)),
	)

	generation.logger.LogService("generation", "complete", time.Since(startTime), map[string]interface{}{
		"model":    generation.config.Model,
		"attempts": attempts,
	}, err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", models.NewGenerationTimeout(err)
		}
		return "", models.NewGenerationFault(err)
	}

	return text, nil
}
