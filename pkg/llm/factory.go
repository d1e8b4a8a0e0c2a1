package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClientFromConfig builds the configured backend wrapped in a circuit breaker.
// The returned client is passed explicitly to every component that generates text.
func NewClientFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*BreakerClient, error) {
	clientCfg := &Config{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		SearchModel: cfg.SearchModel,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}

	var (
		inner LLMClient
		err   error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		inner, err = NewClient(clientCfg, logger)
	case ProviderAnthropic:
		// The default endpoint points at OpenAI; ignore it for Anthropic.
		if strings.Contains(clientCfg.Endpoint, "api.openai.com") {
			clientCfg.Endpoint = ""
		}
		inner, err = NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	breakerCfg := DefaultCircuitBreakerConfig()
	if cfg.BreakerThreshold > 0 {
		breakerCfg.Threshold = cfg.BreakerThreshold
	}
	if cfg.BreakerResetAfter > 0 {
		breakerCfg.ResetAfter = cfg.BreakerResetAfter
	}

	return NewBreakerClient(inner, breakerCfg, logger), nil
}
