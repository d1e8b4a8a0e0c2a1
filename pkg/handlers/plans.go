package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// CreatePlanRequest for POST /api/accounts/{aid}/plans
type CreatePlanRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ArchivePlansRequest for POST /api/accounts/{aid}/plans/archive
type ArchivePlansRequest struct {
	KeepLatest int `json:"keep_latest,omitempty"`
}

// PlanSummary is a plan without its content, as listed.
type PlanSummary struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Status    models.PlanStatus `json:"status"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// PlanListResponse for GET /api/accounts/{aid}/plans
type PlanListResponse struct {
	Plans []PlanSummary `json:"plans"`
	Total int           `json:"total"`
}

// PlanHandler handles strategic plan requests.
type PlanHandler struct {
	planService    services.PlanService
	historyService services.HistoryService
	logger         *zap.Logger
}

// NewPlanHandler creates a new plan handler.
func NewPlanHandler(planService services.PlanService, historyService services.HistoryService, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{
		planService:    planService,
		historyService: historyService,
		logger:         logger,
	}
}

// RegisterRoutes registers the plan handler's routes on the given mux.
func (h *PlanHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	accountBase := "/api/accounts/{aid}/plans"
	mux.HandleFunc("POST "+accountBase, scope(h.Generate))
	mux.HandleFunc("GET "+accountBase, scope(h.List))
	mux.HandleFunc("POST "+accountBase+"/archive", scope(h.Archive))

	base := "/api/plans/{plid}"
	mux.HandleFunc("GET "+base, scope(h.Get))
	mux.HandleFunc("PUT "+base, scope(h.Update))
	mux.HandleFunc("GET "+base+"/history", scope(h.History))
	mux.HandleFunc("POST "+base+"/changes", scope(h.RecordChanges))
	mux.HandleFunc("GET "+base+"/html", scope(h.HTML))
}

// Generate handles POST /api/accounts/{aid}/plans
func (h *PlanHandler) Generate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreatePlanRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	plan, err := h.planService.Generate(r.Context(), accountID, req.Title, req.Description)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "generate_plan_failed")
		return
	}

	writeData(w, h.logger, http.StatusCreated, plan)
}

// List handles GET /api/accounts/{aid}/plans?include_archived=true
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	plans, err := h.planService.List(r.Context(), accountID, queryBool(r, "include_archived", false))
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "list_plans_failed")
		return
	}

	response := PlanListResponse{Plans: make([]PlanSummary, 0, len(plans)), Total: len(plans)}
	for _, p := range plans {
		response.Plans = append(response.Plans, PlanSummary{
			ID:        p.ID.String(),
			Title:     p.Title,
			Status:    p.Status,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
			UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeData(w, h.logger, http.StatusOK, response)
}

// Archive handles POST /api/accounts/{aid}/plans/archive
func (h *PlanHandler) Archive(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req ArchivePlansRequest
	if !decodeOptionalBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.planService.ArchiveOld(r.Context(), accountID, req.KeepLatest)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "archive_plans_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// Get handles GET /api/plans/{plid}
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	plan, err := h.planService.Get(r.Context(), planID)
	if err != nil {
		writeServiceError(w, h.logger, err, "plan_not_found", "get_plan_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, plan)
}

// Update handles PUT /api/plans/{plid}
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	var req models.PlanUpdate
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	plan, err := h.planService.Update(r.Context(), planID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "plan_not_found", "update_plan_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, plan)
}

// History handles GET /api/plans/{plid}/history
func (h *PlanHandler) History(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	history, err := h.historyService.PlanHistory(r.Context(), planID)
	if err != nil {
		writeServiceError(w, h.logger, err, "plan_not_found", "get_plan_history_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, history)
}

// RecordChanges handles POST /api/plans/{plid}/changes with a body of {"changes": {...}}.
func (h *PlanHandler) RecordChanges(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Changes map[string]any `json:"changes"`
	}
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	key, err := h.historyService.RecordPlanChanges(r.Context(), planID, req.Changes)
	if err != nil {
		writeServiceError(w, h.logger, err, "plan_not_found", "record_plan_changes_failed")
		return
	}

	writeData(w, h.logger, http.StatusCreated, map[string]string{"timestamp": key})
}

// HTML handles GET /api/plans/{plid}/html
func (h *PlanHandler) HTML(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	body, err := h.planService.RenderHTML(r.Context(), planID)
	if err != nil {
		writeServiceError(w, h.logger, err, "plan_not_found", "render_plan_failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("Failed to write plan html", zap.Error(err))
	}
}
