package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/logging"
)

// DefaultGatewayTimeout caps a gateway call when the caller's context has no deadline.
const DefaultGatewayTimeout = 30 * time.Second

// Request envelopes. The tool gateway names the tool, the agent gateway names the task.
const (
	EnvelopeTool = "tool"
	EnvelopeTask = "task"
)

// GatewayClient calls an HTTP-JSON provider gateway: POST {<envelope>: task, "input": payload}.
type GatewayClient struct {
	name       string
	endpoint   string
	apiKey     string
	envelope   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGatewayClient creates a gateway client. An empty endpoint yields a disabled client.
func NewGatewayClient(name, endpoint, apiKey, envelope string, logger *zap.Logger) *GatewayClient {
	return &GatewayClient{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		envelope: envelope,
		httpClient: &http.Client{
			Timeout: DefaultGatewayTimeout,
		},
		logger: logger.Named(name),
	}
}

// Enabled reports whether the gateway is configured.
func (g *GatewayClient) Enabled() bool {
	return g != nil && g.endpoint != ""
}

// Call posts task and payload to the gateway and returns the unwrapped response:
// the "data" member, else the "result" member, else the whole body.
func (g *GatewayClient) Call(ctx context.Context, task string, payload map[string]any) (any, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("gateway %s is not configured", g.name)
	}

	body, err := json.Marshal(map[string]any{
		g.envelope: task,
		"input":    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	g.logger.Debug("Calling provider gateway", zap.String("task", task))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gateway %s: %w", g.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway %s returned status %d: %s",
			g.name, resp.StatusCode, logging.TruncateString(string(respBody), 200))
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if obj, ok := decoded.(map[string]any); ok {
		for _, key := range []string{"data", "result"} {
			if inner, ok := obj[key]; ok && inner != nil {
				return inner, nil
			}
		}
	}
	if decoded == nil {
		return nil, fmt.Errorf("gateway %s returned an empty response", g.name)
	}
	return decoded, nil
}
