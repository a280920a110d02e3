package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/circuitbreaker"
	"github.com/stockdesk/backend/pkg/config"
	"github.com/stockdesk/backend/pkg/logger"
	"github.com/stockdesk/backend/pkg/retry"
)

// ErrModelUnavailable hides every provider or transport failure from callers.
var ErrModelUnavailable = errors.New("language model is unavailable")

var errEmptyResponse = errors.New("empty completion")

type Options struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float32
	MaxTokens     int
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	HistoryWindow int
}

// OptionsFromConfig maps the llm and assistant config sections onto gateway options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.LLM.Timeout(),
		MaxAttempts:   cfg.LLM.MaxAttempts,
		HistoryWindow: cfg.Assistant.HistoryWindow,
	}
}

type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UsageRecorder receives the provider-reported usage of every answered call,
// including answers rejected for empty content.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, usage Usage) error
}

type Client struct {
	client        *openai.Client
	model         string
	temperature   float32
	maxTokens     int
	timeout       time.Duration
	historyWindow int
	cb            *circuitbreaker.CircuitBreaker
	retryConfig   retry.Config
	recorder      UsageRecorder
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	History      []models.Message
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

func NewClient(opts Options, recorder UsageRecorder) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing llm api key", config.ErrMisconfigured)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("%w: missing llm model", config.ErrMisconfigured)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 600
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 300 * time.Millisecond
	}

	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    opts.MaxAttempts,
		InitialDelay:   opts.RetryDelay,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		ShouldRetry:    isTransient,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", opts.Model),
		zap.Duration("timeout", opts.Timeout),
	)

	return &Client{
		client:        openai.NewClientWithConfig(clientConfig),
		model:         opts.Model,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
		timeout:       opts.Timeout,
		historyWindow: opts.HistoryWindow,
		cb:            cb,
		retryConfig:   retryConfig,
		recorder:      recorder,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) MaxTokens() int {
	return c.maxTokens
}

// Complete sends system prompt, the tail of the history and the user turn.
// Any failure is reported as ErrModelUnavailable with the cause logged.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := c.buildMessages(req)

	var result *CompletionResponse

	err := c.cb.Execute(func() error {
		return retry.Do(callCtx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				callCtx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			// The provider bills an answered call even when its content is unusable.
			usage := Usage{
				Model:            c.model,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
			c.recordUsage(ctx, usage)

			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return errEmptyResponse
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", usage.PromptTokens),
				zap.Int("completion_tokens", usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage:   usage,
			}
			return nil
		})
	})

	if err != nil {
		logger.Error("LLM call failed", zap.String("model", c.model), zap.Error(err))
		return nil, ErrModelUnavailable
	}

	return result, nil
}

func (c *Client) recordUsage(ctx context.Context, usage Usage) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordUsage(ctx, usage); err != nil {
		logger.Error("Failed to record LLM usage",
			zap.Int("prompt_tokens", usage.PromptTokens),
			zap.Int("completion_tokens", usage.CompletionTokens),
			zap.Error(err),
		)
	}
}

func (c *Client) buildMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	history := req.History
	if c.historyWindow > 0 && len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})
	return messages
}

// isTransient retries rate limiting and server side failures only.
func isTransient(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
