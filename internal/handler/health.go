package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"mpesa-stk-gateway/internal/config"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/pkg/logger"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store     repository.TransactionStore
	config    *config.Config
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store repository.TransactionStore, cfg *config.Config, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		config:    cfg,
		logger:    log,
		startTime: time.Now(),
	}
}

// CheckHealth handles GET /health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Error("Failed to count transactions", "error", err)
	}

	uptime := time.Since(h.startTime)

	response := map[string]interface{}{
		"status": "healthy",
		"provider": map[string]interface{}{
			"base_url":   h.config.Mpesa.BaseURL,
			"short_code": h.config.Mpesa.ShortCode,
		},
		"transactions": count,
		"events_enabled": len(h.config.Kafka.Brokers) > 0,
		"uptime":    uptime.String(),
		"timestamp": time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
