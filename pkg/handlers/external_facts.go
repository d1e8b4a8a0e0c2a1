package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// CollectFactsRequest for POST /api/accounts/{aid}/external-info
type CollectFactsRequest struct {
	// InfoType is "all", "company_profile", "news", or "market_info". Empty means all.
	InfoType string `json:"info_type"`
}

// UpsertFactRequest for PUT /api/accounts/{aid}/external-info
type UpsertFactRequest struct {
	InfoType  models.FactType `json:"info_type"`
	Content   any             `json:"content"`
	SourceURL string          `json:"source_url,omitempty"`
}

// SaveProfileRequest for POST /api/accounts/{aid}/customer-profile
type SaveProfileRequest struct {
	CustomerProfile string `json:"customer_profile"`
}

// ExternalFactHandler handles external fact collection and the customer profile.
type ExternalFactHandler struct {
	factService    services.ExternalFactService
	profileService services.CustomerProfileService
	logger         *zap.Logger
}

// NewExternalFactHandler creates a new external fact handler.
func NewExternalFactHandler(
	factService services.ExternalFactService,
	profileService services.CustomerProfileService,
	logger *zap.Logger,
) *ExternalFactHandler {
	return &ExternalFactHandler{
		factService:    factService,
		profileService: profileService,
		logger:         logger,
	}
}

// RegisterRoutes registers the external fact handler's routes on the given mux.
func (h *ExternalFactHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/accounts/{aid}"

	mux.HandleFunc("POST "+base+"/external-info", scope(h.Collect))
	mux.HandleFunc("GET "+base+"/external-info", scope(h.List))
	mux.HandleFunc("PUT "+base+"/external-info", scope(h.Upsert))
	mux.HandleFunc("DELETE "+base+"/external-info/{type}", scope(h.Delete))
	mux.HandleFunc("POST "+base+"/customer-profile/generate", scope(h.GenerateProfile))
	mux.HandleFunc("POST "+base+"/customer-profile", scope(h.SaveProfile))
	mux.HandleFunc("GET "+base+"/customer-profile", scope(h.GetProfile))
}

// Collect handles POST /api/accounts/{aid}/external-info
func (h *ExternalFactHandler) Collect(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req CollectFactsRequest
	if !decodeOptionalBody(w, r, h.logger, &req) {
		return
	}
	tasks, ok := providers.TasksFor(req.InfoType)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_info_type",
			"info_type must be one of all, company_profile, news, market_info")
		return
	}

	result, err := h.factService.Collect(r.Context(), accountID, tasks)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "collect_external_info_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// List handles GET /api/accounts/{aid}/external-info
func (h *ExternalFactHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	facts, err := h.factService.List(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "list_external_info_failed")
		return
	}
	if facts == nil {
		facts = []*models.ExternalFact{}
	}

	writeData(w, h.logger, http.StatusOK, map[string]any{"external_info": facts, "total": len(facts)})
}

// Upsert handles PUT /api/accounts/{aid}/external-info
func (h *ExternalFactHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpsertFactRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	fact, err := h.factService.Upsert(r.Context(), accountID, req.InfoType, req.Content, req.SourceURL)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "update_external_info_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, fact)
}

// Delete handles DELETE /api/accounts/{aid}/external-info/{type}
func (h *ExternalFactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	factType := models.FactType(r.PathValue("type"))
	if err := h.factService.Delete(r.Context(), accountID, factType); err != nil {
		writeServiceError(w, h.logger, err, "fact_not_found", "delete_external_info_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "External info deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GenerateProfile handles POST /api/accounts/{aid}/customer-profile/generate
func (h *ExternalFactHandler) GenerateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	profile, err := h.profileService.Generate(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "generate_customer_profile_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, profile)
}

// SaveProfile handles POST /api/accounts/{aid}/customer-profile
func (h *ExternalFactHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	var req SaveProfileRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	profile, err := h.profileService.Save(r.Context(), accountID, req.CustomerProfile)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "save_customer_profile_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, profile)
}

// GetProfile handles GET /api/accounts/{aid}/customer-profile
func (h *ExternalFactHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ParseAccountID(w, r, h.logger)
	if !ok {
		return
	}

	profile, err := h.profileService.Get(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err, "account_not_found", "get_customer_profile_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, profile)
}
