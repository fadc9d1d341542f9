package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction represents one STK push authorization attempt, keyed by the
// provider-issued checkout request ID.
type Transaction struct {
	CheckoutRequestID string          `json:"checkout_request_id"`
	Amount            decimal.Decimal `json:"amount"`
	PhoneNumber       string          `json:"phone_number"`
	Status            Status          `json:"status"`
	ResultCode        *int            `json:"result_code,omitempty"`
	ResultDesc        string          `json:"result_desc,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PaymentRequest represents an incoming STK push initiation request.
type PaymentRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Amount      decimal.Decimal `json:"amount"`
}

// PaymentResponse is the envelope for initiation and status responses.
type PaymentResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    *PaymentData  `json:"data,omitempty"`
	Error   *PaymentError `json:"error,omitempty"`
}

// PaymentData carries the successful payload of a PaymentResponse.
type PaymentData struct {
	CheckoutRequestID string          `json:"checkout_request_id"`
	PhoneNumber       string          `json:"phone_number"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionStatus Status          `json:"transaction_status"`
	ResultCode        *int            `json:"result_code,omitempty"`
	ResultDesc        string          `json:"result_desc,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// PaymentError represents an error response
type PaymentError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// StkCallbackEnvelope is the provider's callback body:
// {"Body":{"stkCallback":{...}}}
type StkCallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback is the inner callback payload delivered by the provider.
type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

// CallbackAck is the acknowledgement body the provider expects back,
// regardless of whether the callback was recognized.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// PaymentResultEvent is published when a transaction reaches a terminal state.
type PaymentResultEvent struct {
	EventID           string          `json:"event_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	PhoneNumber       string          `json:"phone_number"`
	Amount            decimal.Decimal `json:"amount"`
	Status            Status          `json:"status"`
	ResultCode        int             `json:"result_code"`
	ResultDesc        string          `json:"result_desc"`
	OccurredAt        time.Time       `json:"occurred_at"`
}
