// Package providers fetches external facts about an account from a priority-ordered
// chain of providers and accepts the first structurally valid answer.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/config"
	"github.com/ekaya-inc/ekaya-accounts/pkg/extraction"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/logging"
)

// Provider names, in default priority order.
const (
	ProviderSearch       = "search"
	ProviderToolGateway  = "tool_gateway"
	ProviderAgentGateway = "agent_gateway"
	ProviderPlain        = "plain"
)

// DefaultAttemptTimeout bounds a single provider attempt.
const DefaultAttemptTimeout = 12 * time.Second

// Candidate is one provider in the fallback chain.
type Candidate interface {
	Name() string
	Enabled() bool
	Fetch(ctx context.Context, task Task, account AccountContext) (any, error)
}

// Attempt records the outcome of one tried candidate.
type Attempt struct {
	Provider string        `json:"provider"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result is the outcome of FetchFact. When Exhausted is true, Value holds the
// task's placeholder and Error the reason; Provider is empty.
type Result struct {
	Task      Task      `json:"task"`
	Value     any       `json:"value"`
	Provider  string    `json:"provider,omitempty"`
	Exhausted bool      `json:"exhausted"`
	Error     string    `json:"error,omitempty"`
	Attempts  []Attempt `json:"attempts"`
}

// Object returns Value as a mapping, or nil.
func (r *Result) Object() map[string]any {
	obj, _ := r.Value.(map[string]any)
	return obj
}

// List returns Value as a list, or nil.
func (r *Result) List() []any {
	list, _ := r.Value.([]any)
	return list
}

// Router tries candidates in order until one returns an acceptable result.
// It never merges partial results and never retries.
type Router struct {
	candidates     []Candidate
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewRouter creates a router over candidates in priority order.
func NewRouter(candidates []Candidate, attemptTimeout time.Duration, logger *zap.Logger) *Router {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Router{
		candidates:     candidates,
		attemptTimeout: attemptTimeout,
		logger:         logger.Named("provider-router"),
	}
}

// NewRouterFromConfig builds the default chain: search generation, tool gateway,
// agent gateway, then plain generation.
func NewRouterFromConfig(cfg config.ProvidersConfig, client llm.LLMClient, logger *zap.Logger) *Router {
	candidates := []Candidate{
		NewGenerationCandidate(ProviderSearch, client, llm.ModeSearch, cfg.SearchEnabled),
		NewGatewayCandidate(NewGatewayClient(ProviderToolGateway, cfg.ToolGatewayEndpoint, cfg.ToolGatewayAPIKey, EnvelopeTool, logger)),
		NewGatewayCandidate(NewGatewayClient(ProviderAgentGateway, cfg.AgentGatewayEndpoint, cfg.AgentGatewayAPIKey, EnvelopeTask, logger)),
		NewGenerationCandidate(ProviderPlain, client, llm.ModePlain, cfg.PlainFallbackEnabled),
	}
	return NewRouter(candidates, cfg.AttemptTimeout, logger)
}

// FetchFact runs the fallback chain for task. It never returns an error:
// exhaustion yields the task's placeholder with Exhausted set.
func (r *Router) FetchFact(ctx context.Context, task Task, account AccountContext) *Result {
	result := &Result{Task: task, Attempts: []Attempt{}}

	spec, err := specFor(task)
	if err != nil {
		result.Exhausted = true
		result.Error = err.Error()
		result.Value = map[string]any{"error": err.Error()}
		return result
	}

	lastErr := errors.New("no providers enabled")
	for _, c := range r.candidates {
		if !c.Enabled() {
			continue
		}

		start := time.Now()
		value, err := r.attempt(ctx, c, task, account)
		if err == nil {
			normalized, ok := spec.normalize(value, account)
			if ok {
				result.Attempts = append(result.Attempts, Attempt{Provider: c.Name(), Elapsed: time.Since(start)})
				result.Value = normalized
				result.Provider = c.Name()
				r.logger.Info("Fact fetched",
					zap.String("task", string(task)),
					zap.String("provider", c.Name()),
					zap.Duration("elapsed", time.Since(start)))
				return result
			}
			err = fmt.Errorf("response from %s lacks the expected fields", c.Name())
		}

		lastErr = err
		result.Attempts = append(result.Attempts, Attempt{
			Provider: c.Name(),
			Error:    logging.SanitizeError(err),
			Elapsed:  time.Since(start),
		})
		r.logger.Warn("Provider attempt failed",
			zap.String("task", string(task)),
			zap.String("provider", c.Name()),
			zap.Duration("elapsed", time.Since(start)),
			logging.ErrorField(err))

		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	reason := logging.SanitizeError(lastErr)
	r.logger.Warn("All providers exhausted",
		zap.String("task", string(task)),
		zap.Int("attempts", len(result.Attempts)),
		zap.String("error", reason))

	result.Exhausted = true
	result.Error = reason
	result.Value = spec.placeholder(account, reason)
	return result
}

type attemptResult struct {
	value any
	err   error
}

// attempt runs one candidate under the per-attempt timeout. A candidate that
// ignores its context is abandoned when the timeout fires; its goroutine exits
// once the candidate returns.
func (r *Router) attempt(ctx context.Context, c Candidate, task Task, account AccountContext) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		v, err := c.Fetch(attemptCtx, task, account)
		done <- attemptResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out: %w", c.Name(), res.err)
		}
		return res.value, res.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("%s timed out: %w", c.Name(), attemptCtx.Err())
	}
}

// ============================================================================
// Candidates
// ============================================================================

type generationCandidate struct {
	name    string
	client  llm.LLMClient
	mode    llm.Mode
	enabled bool
}

// NewGenerationCandidate asks the generation gateway for a task's data in mode.
func NewGenerationCandidate(name string, client llm.LLMClient, mode llm.Mode, enabled bool) Candidate {
	return &generationCandidate{name: name, client: client, mode: mode, enabled: enabled}
}

func (g *generationCandidate) Name() string { return g.name }

func (g *generationCandidate) Enabled() bool { return g.enabled && g.client != nil }

func (g *generationCandidate) Fetch(ctx context.Context, task Task, account AccountContext) (any, error) {
	spec, err := specFor(task)
	if err != nil {
		return nil, err
	}

	prompt := spec.fallback(account)
	if g.mode == llm.ModeSearch {
		prompt = spec.query(account)
	}

	text, err := g.client.Generate(ctx, spec.instructions, prompt, g.mode)
	if err != nil {
		return nil, err
	}
	res := extraction.Extract(text, spec.kind)
	if res.Degraded {
		return nil, fmt.Errorf("extraction failed: %s", res.Error)
	}
	return res.Value(), nil
}

type gatewayCandidate struct {
	client *GatewayClient
}

// NewGatewayCandidate wraps a provider gateway. It is enabled when the gateway is configured.
func NewGatewayCandidate(client *GatewayClient) Candidate {
	return &gatewayCandidate{client: client}
}

func (g *gatewayCandidate) Name() string { return g.client.name }

func (g *gatewayCandidate) Enabled() bool { return g.client.Enabled() }

func (g *gatewayCandidate) Fetch(ctx context.Context, task Task, account AccountContext) (any, error) {
	spec, err := specFor(task)
	if err != nil {
		return nil, err
	}

	value, err := g.client.Call(ctx, string(task), spec.payload(account))
	if err != nil {
		return nil, err
	}

	// Gateways backed by a model may answer with text; run it through extraction.
	if text, ok := value.(string); ok {
		res := extraction.Extract(text, spec.kind)
		if res.Degraded {
			return nil, fmt.Errorf("extraction failed: %s", res.Error)
		}
		return res.Value(), nil
	}
	return value, nil
}
