package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mpesa-stk-gateway/internal/events"
	"mpesa-stk-gateway/internal/model"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/pkg/logger"
)

// successResultCode is the provider's sentinel for a completed payment.
const successResultCode = 0

// CallbackService applies the provider's asynchronous result to the
// matching transaction.
type CallbackService struct {
	store     repository.TransactionStore
	publisher events.Publisher
	logger    *logger.Logger
}

// NewCallbackService creates a callback service.
func NewCallbackService(store repository.TransactionStore, publisher events.Publisher, log *logger.Logger) *CallbackService {
	return &CallbackService{
		store:     store,
		publisher: publisher,
		logger:    log,
	}
}

// HandleCallback applies the terminal transition for the callback's
// checkout request ID. A callback for an already-terminal transaction is
// an idempotent no-op; an unknown ID returns repository.ErrNotFound (the
// HTTP wrapper still acknowledges the provider).
func (s *CallbackService) HandleCallback(ctx context.Context, callback model.StkCallback) error {
	log := s.logger.WithCheckoutID(callback.CheckoutRequestID)

	status := model.StatusFailed
	if callback.ResultCode == successResultCode {
		status = model.StatusCompleted
	}

	applied, err := s.store.Finalize(ctx, callback.CheckoutRequestID, status, callback.ResultCode, callback.ResultDesc)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Callback for unknown checkout request ID",
				"result_code", callback.ResultCode,
			)
			return err
		}
		log.Error("Failed to finalize transaction", "error", err)
		return err
	}

	if !applied {
		log.Info("Duplicate callback ignored", "result_code", callback.ResultCode)
		return nil
	}

	log.Info("Transaction finalized",
		"status", status,
		"result_code", callback.ResultCode,
		"result_desc", callback.ResultDesc,
	)

	tx, err := s.store.Get(ctx, callback.CheckoutRequestID)
	if err != nil {
		return nil
	}
	publishResult(ctx, s.publisher, log, tx)
	return nil
}

// publishResult emits a terminal-transition event. Publishing is
// best-effort: the transition is already committed, so a broker failure
// is logged, not propagated.
func publishResult(ctx context.Context, publisher events.Publisher, log *logger.Logger, tx *model.Transaction) {
	resultCode := 0
	if tx.ResultCode != nil {
		resultCode = *tx.ResultCode
	}

	event := model.PaymentResultEvent{
		EventID:           uuid.NewString(),
		CheckoutRequestID: tx.CheckoutRequestID,
		PhoneNumber:       tx.PhoneNumber,
		Amount:            tx.Amount,
		Status:            tx.Status,
		ResultCode:        resultCode,
		ResultDesc:        tx.ResultDesc,
		OccurredAt:        time.Now(),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Error("Failed to publish payment result event", "error", err)
	}
}
