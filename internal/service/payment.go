package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"mpesa-stk-gateway/internal/config"
	"mpesa-stk-gateway/internal/events"
	"mpesa-stk-gateway/internal/model"
	"mpesa-stk-gateway/internal/mpesa"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/pkg/logger"
	"mpesa-stk-gateway/pkg/retry"
)

// phonePattern matches the MSISDN shape the provider requires: 254
// followed by a 7xx or 1xx mobile prefix, twelve digits total.
var phonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

// Daraja's result code for an STK push the user never answered. Reused
// for transactions whose callback never arrived.
const (
	expiryResultCode = 1037
	expiryResultDesc = "Timeout: no callback received"
)

// Authorizer sends one STK push authorization request.
type Authorizer interface {
	STKPush(ctx context.Context, amount decimal.Decimal, phoneNumber string) (string, error)
}

// PaymentService initiates STK push payments and answers status queries.
type PaymentService struct {
	authorizer Authorizer
	store      repository.TransactionStore
	publisher  events.Publisher
	retryCount int
	retryDelay time.Duration
	pending    config.PendingConfig
	logger     *logger.Logger
	stop       chan struct{}
}

// NewPaymentService creates the payment service. When a pending TTL is
// configured, a background sweeper fails transactions whose callback
// never arrived.
func NewPaymentService(authorizer Authorizer, store repository.TransactionStore, publisher events.Publisher, cfg *config.Config, log *logger.Logger) *PaymentService {
	service := &PaymentService{
		authorizer: authorizer,
		store:      store,
		publisher:  publisher,
		retryCount: cfg.Mpesa.RetryCount,
		retryDelay: cfg.Mpesa.RetryDelay,
		pending:    cfg.Pending,
		logger:     log,
		stop:       make(chan struct{}),
	}

	if cfg.Pending.TTL > 0 {
		go service.expirePendingPeriodically()
	}

	return service
}

// Close stops the background sweeper.
func (s *PaymentService) Close() {
	close(s.stop)
}

// Initiate validates the request, sends the authorization with bounded
// retry, and registers a Pending transaction keyed by the provider-issued
// checkout request ID. No transaction is created on any failure path.
func (s *PaymentService) Initiate(ctx context.Context, amount decimal.Decimal, phoneNumber string) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, amount)
	}
	if !phonePattern.MatchString(phoneNumber) {
		return "", fmt.Errorf("%w: phone number must match 254XXXXXXXXX", ErrValidation)
	}

	var checkoutRequestID string
	err := retry.Do(ctx, s.retryCount, s.retryDelay, func(ctx context.Context) error {
		id, err := s.authorizer.STKPush(ctx, amount, phoneNumber)
		if err != nil {
			s.logger.WithPhone(phoneNumber).Warn("STK push attempt failed", "error", err)
			return err
		}
		checkoutRequestID = id
		return nil
	}, mpesa.Retryable)

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, mpesa.ErrRejected) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// The caller may have given up while the last attempt was in flight;
	// don't strand a record it will never poll for.
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	now := time.Now()
	tx := &model.Transaction{
		CheckoutRequestID: checkoutRequestID,
		Amount:            amount,
		PhoneNumber:       phoneNumber,
		Status:            model.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Insert(ctx, tx); err != nil {
		s.logger.WithCheckoutID(checkoutRequestID).Error("Failed to register transaction", "error", err)
		return "", fmt.Errorf("failed to register transaction: %w", err)
	}

	count, _ := s.store.Count(ctx)
	s.logger.WithCheckoutID(checkoutRequestID).Info("STK push accepted",
		"phone_number", phoneNumber,
		"amount", amount.String(),
		"transaction_count", count,
	)

	return checkoutRequestID, nil
}

// Status returns a snapshot of the transaction, or repository.ErrNotFound.
func (s *PaymentService) Status(ctx context.Context, checkoutRequestID string) (*model.Transaction, error) {
	return s.store.Get(ctx, checkoutRequestID)
}

// expirePendingPeriodically fails Pending transactions older than the
// configured TTL.
func (s *PaymentService) expirePendingPeriodically() {
	ticker := time.NewTicker(s.pending.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.expirePendingOnce(context.Background())
		}
	}
}

func (s *PaymentService) expirePendingOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.pending.TTL)
	ids, err := s.store.ExpirePending(ctx, cutoff, expiryResultCode, expiryResultDesc)
	if err != nil {
		s.logger.Error("Failed to expire pending transactions", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Info("Expired pending transactions", "count", len(ids))
	for _, id := range ids {
		tx, err := s.store.Get(ctx, id)
		if err != nil {
			continue
		}
		publishResult(ctx, s.publisher, s.logger, tx)
	}
}
