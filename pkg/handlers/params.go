package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseAccountID extracts and validates the account ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: aid
func ParseAccountID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "aid", "invalid_account_id", "Invalid account ID format", logger)
}

// ParsePlanID extracts and validates the plan ID from the request path.
// Expects path parameter: plid
func ParsePlanID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "plid", "invalid_plan_id", "Invalid plan ID format", logger)
}

// ParseQuestionID extracts and validates the question template ID from the request path.
// Expects path parameter: qid
func ParseQuestionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "qid", "invalid_question_id", "Invalid question ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// queryBool reads a boolean query parameter, returning def when absent or malformed.
func queryBool(r *http.Request, name string, def bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// queryInt reads a non-negative integer query parameter, returning def when absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
