package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// UpdateSummaryRequest for PUT /api/accounts/{aid}/history/summary
type UpdateSummaryRequest struct {
	Question string `json:"question"`
	Summary  string `json:"summary"`
}

// UpdateAnswerRequest for PUT /api/accounts/{aid}/interactions/update
type UpdateAnswerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DetectChangesRequest for POST /api/accounts/{aid}/changes
type DetectChangesRequest struct {
	NewData map[string]any `json:"new_data"`
}

// HistoryHandler handles read views and maintenance of an account's history.
type HistoryHandler struct {
	historyService   services.HistoryService
	relevanceService services.RelevanceService
	logger           *zap.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(
	historyService services.HistoryService,
	relevanceService services.RelevanceService,
	logger *zap.Logger,
) *HistoryHandler {
	return &HistoryHandler{
		historyService:   historyService,
		relevanceService: relevanceService,
		logger:           logger,
	}
}

// RegisterRoutes registers the history handler's routes on the given mux.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/accounts/{aid}"

	mux.HandleFunc("GET "+base+"/history", scope(h.AccountHistory))
	mux.HandleFunc("GET "+base+"/history/relevant", scope(h.Relevant))
	mux.HandleFunc("GET "+base+"/history/prefill", scope(h.Prefill))
	mux.HandleFunc("GET "+base+"/history/simple", scope(h.SimplePrefill))
	mux.HandleFunc("PUT "+base+"/history/summary", scope(h.UpdateSummary))
	mux.HandleFunc("PUT "+base+"/interactions/update", scope(h.UpdateAnswer))
	mux.HandleFunc("POST "+base+"/changes", scope(h.DetectChanges))
}

// AccountHistory handles GET /api/accounts/{aid}/history
func (h *HistoryHandler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	history, err := h.historyService.AccountHistory(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_history_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, history)
}

// Relevant handles GET /api/accounts/{aid}/history/relevant?current_question=
func (h *HistoryHandler) Relevant(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	question := r.URL.Query().Get("current_question")
	if question == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_error", "current_question is required")
		return
	}

	relevant, err := h.relevanceService.RelevantHistory(r.Context(), accountID, question, nil)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_relevant_history_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, relevant)
}

// Prefill handles GET /api/accounts/{aid}/history/prefill
func (h *HistoryHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	view, err := h.historyService.Prefill(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_prefill_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, view)
}

// SimplePrefill handles GET /api/accounts/{aid}/history/simple
func (h *HistoryHandler) SimplePrefill(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	view, err := h.historyService.SimplePrefill(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_prefill_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, view)
}

// UpdateSummary handles PUT /api/accounts/{aid}/history/summary
func (h *HistoryHandler) UpdateSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateSummaryRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	interaction, err := h.historyService.UpdateHistorySummary(r.Context(), accountID, req.Question, req.Summary)
	if err != nil {
		writeServiceError(w, h.logger, err, "conversation_not_found", "update_summary_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, interaction)
}

// UpdateAnswer handles PUT /api/accounts/{aid}/interactions/update
func (h *HistoryHandler) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateAnswerRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	interaction, err := h.historyService.UpdateInteractionAnswer(r.Context(), accountID, req.Question, req.Answer)
	if err != nil {
		writeServiceError(w, h.logger, err, "interaction_not_found", "update_answer_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, interaction)
}

// DetectChanges handles POST /api/accounts/{aid}/changes
func (h *HistoryHandler) DetectChanges(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req DetectChangesRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	report, err := h.relevanceService.DetectChanges(r.Context(), accountID, req.NewData)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "detect_changes_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, report)
}
