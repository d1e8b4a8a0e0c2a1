package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicEndpoint = "https://api.anthropic.com/v1"

// AnthropicClient serves generation calls through the Anthropic Messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	endpoint    string
	model       string
	searchModel string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewAnthropicClient creates an Anthropic-backed client. An empty endpoint uses the public API.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultAnthropicEndpoint
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	searchModel := cfg.SearchModel
	if searchModel == "" {
		searchModel = cfg.Model
	}

	client := anthropic.NewClient(cfg.APIKey,
		anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/")),
		anthropic.WithHTTPClient(newHTTPClient()),
	)

	return &AnthropicClient{
		client:      client,
		endpoint:    endpoint,
		model:       cfg.Model,
		searchModel: searchModel,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     cfg.Timeout,
		logger:      logger.Named("llm-anthropic"),
	}, nil
}

// Generate sends one user message and returns the normalized text blocks.
func (c *AnthropicClient) Generate(ctx context.Context, instructions, input string, mode Mode) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.model
	if mode == ModeSearch {
		model = c.searchModel
		instructions = strings.TrimSpace(instructions + "\n\n" + searchNote)
	}

	temperature := float32(c.temperature)
	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		MaxTokens:   c.maxTokens,
		System:      instructions,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &input},
			}},
		},
	}

	c.logger.Debug("LLM request",
		zap.String("model", model),
		zap.String("mode", string(mode)),
		zap.Int("input_len", len(input)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err, model)
	}

	var fragments []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			fragments = append(fragments, *block.Text)
		}
	}

	text, err := normalizeText(fragments)
	if err != nil {
		return "", c.parseError(err, model)
	}

	c.logger.Info("LLM request completed",
		zap.String("model", model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

func (c *AnthropicClient) parseError(err error, model string) error {
	llmErr := ClassifyError(err)
	if llmErr.Model == "" {
		llmErr.Model = model
	}
	if llmErr.Endpoint == "" {
		llmErr.Endpoint = c.endpoint
	}
	return llmErr
}
