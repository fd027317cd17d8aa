package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/dispatch"
)

const version = "1.0.0"

// HealthChecker reports whether backing storage is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler provides common handler utilities and dependencies
type Handler struct {
	Dispatcher *dispatch.Dispatcher
	Runs       database.RunRepository
	Cache      database.DistanceCacheRepository
	Health     HealthChecker
	Log        *zap.Logger
}

// envelope wraps successful responses as {"data": ...}
type envelope map[string]any

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Log.Warn("[HTTP] Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details any) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func (h *Handler) handleValidationError(w http.ResponseWriter, message string, details any) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	h.Log.Error("[ERROR] Internal error", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "connected"

	if h.Health != nil {
		if err := h.Health.HealthCheck(r.Context()); err != nil {
			h.Log.Warn("[HTTP] Health check failed", zap.Error(err))
			status = "degraded"
			dbStatus = "error"
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"version":  version,
		"database": dbStatus,
	})
}
