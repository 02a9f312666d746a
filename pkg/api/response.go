package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/hina-service/pkg/errs"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// writeSuccessResponse writes a successful JSON response
func writeSuccessResponse(w http.ResponseWriter, r *http.Request, message string, data interface{}) {
	writeJSONResponse(w, http.StatusOK, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: requestID(r),
	})
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	response := APIResponse{
		Success:   false,
		Message:   message,
		RequestID: requestID(r),
	}
	if err != nil {
		response.Error = err.Error()
	}
	writeJSONResponse(w, statusCode, response)
}

// writeValidationErrorResponse reports per-field validation failures.
func writeValidationErrorResponse(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	writeJSONResponse(w, http.StatusBadRequest, APIResponse{
		Success:   false,
		Message:   "Request validation failed",
		Data:      map[string]interface{}{"validation_errors": fields},
		RequestID: requestID(r),
	})
}

// statusFor maps an analysis error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errs.IsInvalid(err):
		return http.StatusBadRequest
	case errs.IsUnsupported(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("Failed to encode JSON response")
	}
}
