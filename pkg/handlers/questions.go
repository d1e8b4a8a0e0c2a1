package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// CreateQuestionRequest for POST /api/questions
type CreateQuestionRequest struct {
	Category          string   `json:"category"`
	QuestionText      string   `json:"question_text"`
	Description       string   `json:"description,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	DisplayOrder      int      `json:"display_order,omitempty"`
}

// SaveAnswerRequest for POST /api/accounts/{aid}/interactions
type SaveAnswerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FollowUpsRequest for POST /api/questions/follow-ups
type FollowUpsRequest struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Context  map[string]any `json:"context,omitempty"`
}

// QuestionHandler handles the question catalog, direct answers, and progress.
type QuestionHandler struct {
	questionService services.QuestionService
	logger          *zap.Logger
}

// NewQuestionHandler creates a new question handler.
func NewQuestionHandler(questionService services.QuestionService, logger *zap.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		logger:          logger,
	}
}

// RegisterRoutes registers the question handler's routes on the given mux.
func (h *QuestionHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/questions"

	mux.HandleFunc("GET "+base, scope(h.List))
	mux.HandleFunc("POST "+base, scope(h.Create))
	mux.HandleFunc("GET "+base+"/core", scope(h.Core))
	mux.HandleFunc("POST "+base+"/initialize", scope(h.Seed))
	mux.HandleFunc("GET "+base+"/flow", h.Flow)
	mux.HandleFunc("POST "+base+"/follow-ups", h.FollowUps)
	mux.HandleFunc("GET "+base+"/{qid}", scope(h.Get))
	mux.HandleFunc("PUT "+base+"/{qid}", scope(h.Update))
	mux.HandleFunc("DELETE "+base+"/{qid}", scope(h.Delete))

	mux.HandleFunc("POST /api/accounts/{aid}/interactions", scope(h.SaveAnswer))
	mux.HandleFunc("GET /api/accounts/{aid}/progress", scope(h.Progress))
}

// List handles GET /api/questions?active_only=true&category=
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questionService.List(r.Context(), queryBool(r, "active_only", true), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "list_questions_failed")
		return
	}
	if questions == nil {
		questions = []*models.QuestionTemplate{}
	}
	writeData(w, h.logger, http.StatusOK, map[string]any{"questions": questions, "total": len(questions)})
}

// Core handles GET /api/questions/core
func (h *QuestionHandler) Core(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questionService.CoreQuestions(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "list_core_questions_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, map[string]any{"questions": questions, "total": len(questions)})
}

// Seed handles POST /api/questions/initialize
func (h *QuestionHandler) Seed(w http.ResponseWriter, r *http.Request) {
	result, err := h.questionService.Seed(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "initialize_questions_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Flow handles GET /api/questions/flow?flow_type=comprehensive
func (h *QuestionHandler) Flow(w http.ResponseWriter, r *http.Request) {
	flowType := r.URL.Query().Get("flow_type")
	if flowType == "" {
		flowType = services.FlowComprehensive
	}
	writeData(w, h.logger, http.StatusOK, h.questionService.Flow(flowType))
}

// FollowUps handles POST /api/questions/follow-ups
func (h *QuestionHandler) FollowUps(w http.ResponseWriter, r *http.Request) {
	var req FollowUpsRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Question == "" || req.Answer == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_error", "question and answer are required")
		return
	}

	questions := h.questionService.FollowUps(r.Context(), req.Question, req.Answer, req.Context)
	writeData(w, h.logger, http.StatusOK, map[string]any{"follow_up_questions": questions})
}

// Create handles POST /api/questions
func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuestionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	q := &models.QuestionTemplate{
		Category:          req.Category,
		QuestionText:      req.QuestionText,
		Description:       req.Description,
		FollowUpQuestions: req.FollowUpQuestions,
		DisplayOrder:      req.DisplayOrder,
		IsActive:          true,
	}
	if err := h.questionService.Create(r.Context(), q); err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "create_question_failed")
		return
	}

	writeData(w, h.logger, http.StatusCreated, q)
}

// Get handles GET /api/questions/{qid}
func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	questionID, ok := ParseQuestionID(w, r, h.logger)
	if !ok {
		return
	}

	q, err := h.questionService.Get(r.Context(), questionID)
	if err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "get_question_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, q)
}

// Update handles PUT /api/questions/{qid}
func (h *QuestionHandler) Update(w http.ResponseWriter, r *http.Request) {
	questionID, ok := ParseQuestionID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.QuestionUpdate
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	q, err := h.questionService.Update(r.Context(), questionID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "update_question_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, q)
}

// Delete handles DELETE /api/questions/{qid}
func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	questionID, ok := ParseQuestionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.questionService.Delete(r.Context(), questionID); err != nil {
		writeServiceError(w, h.logger, err, "question_not_found", "delete_question_failed")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Question deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SaveAnswer handles POST /api/accounts/{aid}/interactions
func (h *QuestionHandler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req SaveAnswerRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	interaction, err := h.questionService.SaveAnswer(r.Context(), accountID, req.Question, req.Answer)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "save_answer_failed")
		return
	}
	writeData(w, h.logger, http.StatusCreated, interaction)
}

// Progress handles GET /api/accounts/{aid}/progress
func (h *QuestionHandler) Progress(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	progress, err := h.questionService.Progress(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_progress_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, progress)
}
