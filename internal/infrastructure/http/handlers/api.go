// Package handlers provides HTTP handlers for the REST API
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool                    `json:"success"`
	Data    interface{}             `json:"data,omitempty"`
	Error   *apperrors.ErrorDetails `json:"error,omitempty"`
	Message string                  `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}, message string, logger *zap.Logger) {
	writeJSON(w, status, APIResponse{Success: true, Data: data, Message: message}, logger)
}

// writeError maps any error onto the AppError envelope. Non-AppErrors are
// reported as internal errors without leaking their text.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("").WithCause(err)
	}

	status := appErr.StatusCode()
	fields := []zap.Field{
		zap.String("code", string(appErr.Code)),
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		if appErr.StackTrace != "" {
			fields = append(fields, zap.String("stack_trace", appErr.StackTrace))
		}
		logger.Error("Request failed", fields...)
	} else {
		logger.Debug("Request rejected", fields...)
	}

	details := apperrors.ToErrorResponse(appErr, middleware.GetReqID(r.Context())).Error
	writeJSON(w, status, APIResponse{Success: false, Error: &details}, logger)
}

// validationError converts validator output into the AppError used for
// request validation failures.
func validationError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(err.Error())
	}

	out := make([]apperrors.ValidationError, len(verrs))
	for i, fe := range verrs {
		out[i] = apperrors.ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Tag:     fe.Tag(),
			Message: fe.Field() + " " + validationMessage(fe),
		}
	}
	return apperrors.NewValidationErrors(out)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must contain at least " + fe.Param() + " element(s)"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "excluded_with":
		return "cannot be combined with " + fe.Param()
	default:
		return "is invalid"
	}
}
