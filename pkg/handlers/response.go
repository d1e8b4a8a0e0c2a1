package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
)

// ApiResponse is the envelope of every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeData wraps data in a successful ApiResponse.
func writeData(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps a service error to a status code. Not-found errors
// use notFoundCode; anything unclassified is logged and reported as failCode.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, notFoundCode, failCode string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, notFoundCode, err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeError(w, logger, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, logger, http.StatusConflict, "conflict", err.Error())
	default:
		logger.Error("Request failed", zap.String("error_code", failCode), zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, failCode, err.Error())
	}
}

// decodeBody decodes the JSON request body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for requests whose body may be empty.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}
