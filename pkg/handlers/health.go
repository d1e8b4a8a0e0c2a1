package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/config"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
}

// DatabasePinger reports database reachability.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check, ping, and gateway check endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     DatabasePinger
	tester llm.ConnectionTester
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and tester may be nil.
func NewHealthHandler(cfg *config.Config, db DatabasePinger, tester llm.ConnectionTester, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, tester: tester, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /health/llm", h.CheckLLM)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns service information and database reachability.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-accounts",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Database:    "unconfigured",
	}
	if h.db != nil {
		response.Database = "ok"
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("Database ping failed", zap.Error(err))
			response.Status = "degraded"
			response.Database = "unreachable"
		}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// CheckLLM handles GET /health/llm by sending a minimal prompt to the generation gateway.
func (h *HealthHandler) CheckLLM(w http.ResponseWriter, r *http.Request) {
	if h.tester == nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "llm_not_configured", "Generation gateway is not configured")
		return
	}

	result := h.tester.Test(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, ApiResponse{Success: result.Success, Data: result, Message: result.Message}); err != nil {
		h.logger.Error("Failed to encode llm check response", zap.Error(err))
	}
}
