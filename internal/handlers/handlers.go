package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"waterwise/internal/logger"
	"waterwise/internal/models"
	"waterwise/internal/session"
	"waterwise/internal/storage"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// TestQuerier reads stored water tests.
type TestQuerier interface {
	QueryTests(ctx context.Context, limit int, f storage.Filter) ([]models.StoredTest, error)
}

// HistoryHandler serves GET /submissions for an authorized caller.
type HistoryHandler struct {
	auth  session.Authorizer
	store TestQuerier
}

func NewHistoryHandler(auth session.Authorizer, store TestQuerier) *HistoryHandler {
	return &HistoryHandler{auth: auth, store: store}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authorize(r)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "unauthorized")
			return
		}
		logger.Error("session lookup failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusServiceUnavailable, "Session store unavailable", "session_unavailable")
		return
	}

	query := r.URL.Query()

	// Out of range limits fall back to the default
	limit := defaultHistoryLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxHistoryLimit {
			limit = l
		}
	}

	filter := storage.Filter{
		Location:    query.Get("location"),
		WaterSource: query.Get("water_source"),
		Prediction:  query.Get("prediction"),
	}

	tests, err := h.store.QueryTests(r.Context(), limit, filter)
	if err != nil {
		logger.Error("failed to query water tests", map[string]interface{}{
			"error":      err.Error(),
			"subject_id": identity.SubjectID,
		})
		writeError(w, http.StatusInternalServerError, "database error", "storage_error")
		return
	}

	logger.Info("returning water tests", map[string]interface{}{
		"count":      len(tests),
		"subject_id": identity.SubjectID,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tests)
}

// HealthHandler returns service health status
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
