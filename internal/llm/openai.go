// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultRequestTimeout = 120 * time.Second

// Config configures an OpenAIClient.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string // overrides the provider default
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// OpenAIClient generates text through any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client   openai.Client
	provider string
	model    string
	cfg      Config
	usage    UsageRecorder
	logger   *slog.Logger
}

// NewOpenAIClient creates a client for cfg. usage may be nil.
func NewOpenAIClient(cfg Config, usage UsageRecorder, logger *slog.Logger) (*OpenAIClient, error) {
	info, err := GetProviderInfo(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if info.NeedsAPIKey && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", info.Name)
	}
	if cfg.Model == "" {
		if len(info.Models) == 0 {
			return nil, errors.New("llm model is required")
		}
		cfg.Model = info.Models[0].ID
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "ollama"
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
		// Retries are the caller's decision.
		option.WithMaxRetries(0),
	}

	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		provider: info.ID,
		model:    cfg.Model,
		cfg:      cfg,
		usage:    usage,
		logger:   logger,
	}, nil
}

// Model returns the configured model ID.
func (c *OpenAIClient) Model() string { return c.model }

// GenerateText sends prompt to the chat completions endpoint. The grounding
// text is passed as a separate user message ahead of the instruction.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt Prompt, grounding string) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.System),
	}
	if strings.TrimSpace(grounding) != "" {
		msgs = append(msgs, openai.UserMessage("Reference material:\n\n"+grounding))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = openai.Float(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.cfg.MaxTokens)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%s chat: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	c.record(ctx, prompt.Operation, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens, time.Since(start))

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) record(ctx context.Context, operation string, prompt, completion, total int64, d time.Duration) {
	if c.usage == nil {
		return
	}
	u := Usage{
		Provider:         c.provider,
		Model:            c.model,
		Operation:        operation,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
		CostUSD:          CalculateCost(c.provider, c.model, prompt, completion),
		Duration:         d,
		CreatedAt:        time.Now().UTC(),
	}
	if err := c.usage.RecordUsage(context.WithoutCancel(ctx), u); err != nil {
		c.logger.Warn("failed to record llm usage", "error", err, "operation", operation)
	}
}
