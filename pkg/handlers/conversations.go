package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// StartConversationRequest for POST /api/accounts/{aid}/conversations/start
type StartConversationRequest struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context,omitempty"`
}

// ConversationRequest continues or ends an interview. Clients send either the
// conversation id of a server-held interview or the full conversation object.
type ConversationRequest struct {
	ConversationID string               `json:"conversation_id,omitempty"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
	UserMessage    string               `json:"user_message,omitempty"`
}

// ConversationHandler handles guided interviews.
type ConversationHandler struct {
	interviewService services.InterviewService
	historyService   services.HistoryService
	store            services.ConversationStore
	logger           *zap.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(
	interviewService services.InterviewService,
	historyService services.HistoryService,
	store services.ConversationStore,
	logger *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		interviewService: interviewService,
		historyService:   historyService,
		store:            store,
		logger:           logger,
	}
}

// RegisterRoutes registers the conversation handler's routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/accounts/{aid}/conversations"

	mux.HandleFunc("GET "+base, scope(h.List))
	mux.HandleFunc("POST "+base+"/start", scope(h.Start))
	mux.HandleFunc("POST "+base+"/continue", scope(h.Continue))
	mux.HandleFunc("POST "+base+"/end", scope(h.End))
	mux.HandleFunc("DELETE "+base+"/{cid}", h.Discard)
}

// List handles GET /api/accounts/{aid}/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	records, err := h.historyService.ConversationHistory(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "list_conversations_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, map[string]any{"conversations": records, "total": len(records)})
}

// Start handles POST /api/accounts/{aid}/conversations/start
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req StartConversationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	conv, err := h.interviewService.Start(r.Context(), accountID, req.Question, req.Context)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "start_conversation_failed")
		return
	}
	h.store.Put(conv)

	writeData(w, h.logger, http.StatusCreated, conv)
}

// Continue handles POST /api/accounts/{aid}/conversations/continue
func (h *ConversationHandler) Continue(w http.ResponseWriter, r *http.Request) {
	var req ConversationRequest
	conv, ok := h.resolve(w, r, &req)
	if !ok {
		return
	}

	conv, err := h.interviewService.Continue(r.Context(), conv, req.UserMessage)
	if err != nil {
		writeServiceError(w, h.logger, err, "conversation_not_found", "continue_conversation_failed")
		return
	}
	h.store.Put(conv)

	writeData(w, h.logger, http.StatusOK, conv)
}

// End handles POST /api/accounts/{aid}/conversations/end
func (h *ConversationHandler) End(w http.ResponseWriter, r *http.Request) {
	var req ConversationRequest
	conv, ok := h.resolve(w, r, &req)
	if !ok {
		return
	}

	result, err := h.interviewService.End(r.Context(), conv)
	if err != nil {
		writeServiceError(w, h.logger, err, "conversation_not_found", "end_conversation_failed")
		return
	}
	h.store.Delete(conv.ID)

	writeData(w, h.logger, http.StatusOK, result)
}

// Discard handles DELETE /api/accounts/{aid}/conversations/{cid}.
// A discarded interview leaves no trace in the history store.
func (h *ConversationHandler) Discard(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	conv, found := h.store.Get(r.PathValue("cid"))
	if !found || conv.AccountID != accountID {
		writeError(w, h.logger, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return
	}
	h.store.Delete(conv.ID)

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Conversation discarded"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// resolve decodes req and returns the conversation it refers to, writing an
// error response when it cannot be found or belongs to another account.
func (h *ConversationHandler) resolve(w http.ResponseWriter, r *http.Request, req *ConversationRequest) (*models.Conversation, bool) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return nil, false
	}
	if !decodeBody(w, r, h.logger, req) {
		return nil, false
	}

	conv := req.Conversation
	if conv == nil {
		if req.ConversationID == "" {
			writeError(w, h.logger, http.StatusBadRequest, "validation_error", "conversation_id or conversation is required")
			return nil, false
		}
		stored, found := h.store.Get(req.ConversationID)
		if !found {
			writeError(w, h.logger, http.StatusNotFound, "conversation_not_found", "Conversation not found")
			return nil, false
		}
		conv = stored
	}

	if conv.AccountID != accountID {
		writeError(w, h.logger, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return nil, false
	}
	return conv, true
}
