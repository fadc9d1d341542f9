package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"mpesa-stk-gateway/internal/model"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/internal/service"
	"mpesa-stk-gateway/pkg/logger"
)

// CallbackHandler receives the provider's asynchronous payment result.
type CallbackHandler struct {
	callbackService *service.CallbackService
	logger          *logger.Logger
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(callbackService *service.CallbackService, log *logger.Logger) *CallbackHandler {
	return &CallbackHandler{
		callbackService: callbackService,
		logger:          log,
	}
}

// ReceiveCallback handles POST /api/v1/mpesa/callback.
//
// The provider redelivers callbacks on non-2xx responses, so this handler
// always acknowledges receipt, even for unknown or malformed payloads.
// Recognition failures are logged for internal observers instead.
func (h *CallbackHandler) ReceiveCallback(w http.ResponseWriter, r *http.Request) {
	var envelope model.StkCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("Malformed callback body",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		h.sendAck(w)
		return
	}

	callback := envelope.Body.StkCallback
	if callback.CheckoutRequestID == "" {
		h.logger.Warn("Callback missing CheckoutRequestID", "remote_addr", r.RemoteAddr)
		h.sendAck(w)
		return
	}

	if err := h.callbackService.HandleCallback(r.Context(), callback); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.logger.WithCheckoutID(callback.CheckoutRequestID).Error("Failed to process callback", "error", err)
		}
		// Still acknowledged below; the provider must not retry forever
		// on an ID this process will never recognize.
	}

	h.sendAck(w)
}

// sendAck returns the acknowledgement body the provider expects.
func (h *CallbackHandler) sendAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(model.CallbackAck{
		ResultCode: 0,
		ResultDesc: "Accepted",
	})
}
