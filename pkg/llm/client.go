package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// searchNote is appended to the instructions of search-mode calls.
const searchNote = "Use the most recent public information you can find. " +
	"If no verifiable information exists, provide plausible information based on the company name and industry, " +
	"and keep the requested output format exactly."

// Client provides access to OpenAI-compatible endpoints.
type Client struct {
	client      *openai.Client
	endpoint    string
	model       string
	searchModel string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// Config holds configuration for creating a gateway client.
type Config struct {
	Endpoint    string // Base URL, e.g., "https://api.openai.com/v1"
	Model       string // Model name, e.g., "gpt-4o"
	SearchModel string // Model used for ModeSearch; falls back to Model
	APIKey      string // Optional for local endpoints
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // Per-call timeout; zero means the caller's context decides
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = newHTTPClient()

	searchModel := cfg.SearchModel
	if searchModel == "" {
		searchModel = cfg.Model
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		searchModel: searchModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger.Named("llm"),
	}, nil
}

// Generate runs a chat completion and returns normalized text.
func (c *Client) Generate(ctx context.Context, instructions, input string, mode Mode) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
	}
	if mode == ModeSearch {
		// Search models reject sampling parameters.
		req.Model = c.searchModel
		instructions = strings.TrimSpace(instructions + "\n\n" + searchNote)
	} else {
		req.Temperature = float32(c.temperature)
	}
	req.Messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: instructions},
		{Role: openai.ChatMessageRoleUser, Content: input},
	}

	c.logger.Debug("LLM request",
		zap.String("model", req.Model),
		zap.String("mode", string(mode)),
		zap.Int("input_len", len(input)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err, req.Model)
	}

	fragments := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		fragments = append(fragments, choice.Message.Content)
	}

	text, err := normalizeText(fragments)
	if err != nil {
		return "", c.parseError(err, req.Model)
	}

	c.logger.Info("LLM request completed",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

func (c *Client) parseError(err error, model string) error {
	llmErr := ClassifyError(err)
	if llmErr.Model == "" {
		llmErr.Model = model
	}
	if llmErr.Endpoint == "" {
		llmErr.Endpoint = c.endpoint
	}
	return llmErr
}
