package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mpesa-stk-gateway/internal/model"
	"mpesa-stk-gateway/internal/mpesa"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/internal/service"
	"mpesa-stk-gateway/pkg/logger"
)

// PaymentHandler handles STK push initiation and status queries.
type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         *logger.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         log,
	}
}

// InitiatePayment handles POST /api/v1/stkpush
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, "ERR_METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorResponse(w, "ERR_INVALID_BODY", "Invalid JSON body", http.StatusBadRequest)
		return
	}

	checkoutRequestID, err := h.paymentService.Initiate(r.Context(), req.Amount, req.PhoneNumber)
	if err != nil {
		h.logger.WithPhone(req.PhoneNumber).Error("Failed to initiate payment", "error", err)
		code, status := h.mapError(err)
		h.sendErrorResponse(w, code, err.Error(), status)
		return
	}

	h.sendSuccessResponse(w, "STK push sent successfully", &model.PaymentData{
		CheckoutRequestID: checkoutRequestID,
		PhoneNumber:       req.PhoneNumber,
		Amount:            req.Amount,
		TransactionStatus: model.StatusPending,
		Timestamp:         time.Now(),
	})
}

// QueryStatus handles GET /api/v1/stkpush/status
func (h *PaymentHandler) QueryStatus(w http.ResponseWriter, r *http.Request) {
	checkoutRequestID := r.URL.Query().Get("checkout_request_id")
	if checkoutRequestID == "" {
		h.sendErrorResponse(w, "ERR_MISSING_PARAMETER", "checkout_request_id is required", http.StatusBadRequest)
		return
	}

	tx, err := h.paymentService.Status(r.Context(), checkoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendErrorResponse(w, "ERR_TRANSACTION_NOT_FOUND", "Transaction not found", http.StatusNotFound)
			return
		}
		h.logger.WithCheckoutID(checkoutRequestID).Error("Failed to query status", "error", err)
		h.sendErrorResponse(w, "ERR_INTERNAL_SERVER", err.Error(), http.StatusInternalServerError)
		return
	}

	h.sendSuccessResponse(w, "Payment "+string(tx.Status), &model.PaymentData{
		CheckoutRequestID: tx.CheckoutRequestID,
		PhoneNumber:       tx.PhoneNumber,
		Amount:            tx.Amount,
		TransactionStatus: tx.Status,
		ResultCode:        tx.ResultCode,
		ResultDesc:        tx.ResultDesc,
		Timestamp:         tx.UpdatedAt,
	})
}

// mapError maps a service error to an error code and HTTP status
func (h *PaymentHandler) mapError(err error) (string, int) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return "ERR_VALIDATION", http.StatusBadRequest
	case errors.Is(err, mpesa.ErrRejected):
		return "ERR_PAYMENT_REJECTED", http.StatusBadRequest
	case errors.Is(err, service.ErrUnavailable):
		return "ERR_SERVICE_UNAVAILABLE", http.StatusServiceUnavailable
	default:
		return "ERR_INTERNAL_SERVER", http.StatusInternalServerError
	}
}

// sendSuccessResponse sends success response
func (h *PaymentHandler) sendSuccessResponse(w http.ResponseWriter, message string, data *model.PaymentData) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := model.PaymentResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

// sendErrorResponse sends error response
func (h *PaymentHandler) sendErrorResponse(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := model.PaymentResponse{
		Status:  "error",
		Message: message,
		Error: &model.PaymentError{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}
