package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// ScopeMiddleware attaches a request-scoped database connection.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateAccountRequest for POST /api/accounts
type CreateAccountRequest struct {
	CompanyName string `json:"company_name"`
	Industry    string `json:"industry,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	Website     string `json:"website,omitempty"`
	Country     string `json:"country"`
	Description string `json:"description,omitempty"`
}

// AccountListResponse for GET /api/accounts
type AccountListResponse struct {
	Accounts []*models.Account `json:"accounts"`
	Total    int               `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// AccountHandler handles account CRUD requests.
type AccountHandler struct {
	accountService services.AccountService
	logger         *zap.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService services.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// RegisterRoutes registers the account handler's routes on the given mux.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/accounts"

	mux.HandleFunc("POST "+base, scope(h.Create))
	mux.HandleFunc("GET "+base, scope(h.List))
	mux.HandleFunc("GET "+base+"/{aid}", scope(h.Get))
	mux.HandleFunc("PUT "+base+"/{aid}", scope(h.Update))
	mux.HandleFunc("DELETE "+base+"/{aid}", scope(h.Delete))
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	account := &models.Account{
		CompanyName: req.CompanyName,
		Industry:    req.Industry,
		CompanySize: req.CompanySize,
		Website:     req.Website,
		Country:     req.Country,
		Description: req.Description,
	}
	if err := h.accountService.Create(r.Context(), account); err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "create_account_failed")
		return
	}

	writeData(w, h.logger, http.StatusCreated, account)
}

// List handles GET /api/accounts?search=&industry=&country=&limit=&offset=
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AccountFilter{
		Search:   q.Get("search"),
		Industry: q.Get("industry"),
		Country:  q.Get("country"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   queryInt(r, "offset", 0),
	}

	accounts, err := h.accountService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "list_accounts_failed")
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}

	writeData(w, h.logger, http.StatusOK, AccountListResponse{Accounts: accounts, Total: len(accounts)})
}

// Get handles GET /api/accounts/{aid}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	account, err := h.accountService.Get(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_account_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, account)
}

// Update handles PUT /api/accounts/{aid}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.AccountUpdate
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	account, err := h.accountService.Update(r.Context(), accountID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "update_account_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, account)
}

// Delete handles DELETE /api/accounts/{aid}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.accountService.Delete(r.Context(), accountID); err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "delete_account_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Account deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
