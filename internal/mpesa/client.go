package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"mpesa-stk-gateway/internal/config"
	"mpesa-stk-gateway/pkg/logger"
)

const (
	stkPushPath     = "/mpesa/stkpush/v1/processrequest"
	transactionType = "CustomerPayBillOnline"

	// acceptedResponseCode is the provider's success sentinel for an
	// accepted STK push request.
	acceptedResponseCode = "0"
)

// Client sends STK push authorization requests to the Daraja API.
type Client struct {
	httpClient  *http.Client
	credentials *CredentialCache
	config      *config.MpesaConfig
	logger      *logger.Logger
	now         func() time.Time
}

// NewClient creates a Daraja client using the given credential cache.
func NewClient(cfg *config.MpesaConfig, credentials *CredentialCache, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		credentials: credentials,
		config:      cfg,
		logger:      log,
		now:         time.Now,
	}
}

// stkPushRequest is the Daraja STK push request body.
type stkPushRequest struct {
	BusinessShortCode string      `json:"BusinessShortCode"`
	Password          string      `json:"Password"`
	Timestamp         string      `json:"Timestamp"`
	TransactionType   string      `json:"TransactionType"`
	Amount            json.Number `json:"Amount"`
	PartyA            string      `json:"PartyA"`
	PartyB            string      `json:"PartyB"`
	PhoneNumber       string      `json:"PhoneNumber"`
	CallBackURL       string      `json:"CallBackURL"`
	AccountReference  string      `json:"AccountReference"`
	TransactionDesc   string      `json:"TransactionDesc"`
}

// stkPushResponse covers both the acceptance body and the error body the
// provider returns on application-level failures.
type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// STKPush sends one authorization request and returns the provider-issued
// checkout request ID on acceptance. Errors are classified with the
// package sentinels so the caller can decide what to retry.
func (c *Client) STKPush(ctx context.Context, amount decimal.Decimal, phoneNumber string) (string, error) {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return "", err
	}

	timestamp := c.now().Format("20060102150405")
	payload := stkPushRequest{
		BusinessShortCode: c.config.ShortCode,
		Password:          DerivePassword(c.config.ShortCode, c.config.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            json.Number(amount.String()),
		PartyA:            phoneNumber,
		PartyB:            c.config.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  c.config.AccountRef,
		TransactionDesc:   c.config.TransactionDesc,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal STK push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+stkPushPath, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create STK push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: STK push request failed: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	var body stkPushResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Token died before its reported expiry; drop it so the next
		// attempt fetches a fresh one.
		c.credentials.Invalidate()
		return "", fmt.Errorf("%w: provider rejected access token", ErrAuthentication)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: provider returned status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		detail := body.ErrorMessage
		if detail == "" {
			detail = body.ResponseDescription
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, detail)
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: malformed STK push response: %v", ErrTransient, decodeErr)
	}
	if body.ResponseCode != acceptedResponseCode {
		return "", fmt.Errorf("%w: response code %q: %s", ErrRejected, body.ResponseCode, body.ResponseDescription)
	}
	if body.CheckoutRequestID == "" {
		return "", fmt.Errorf("%w: acceptance missing CheckoutRequestID", ErrRejected)
	}

	return body.CheckoutRequestID, nil
}

// DerivePassword produces the Daraja request password:
// base64(shortcode + passkey + timestamp).
func DerivePassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// Retryable reports whether the initiation flow may retry after err.
// Credential failures and transient provider failures are retryable;
// explicit rejections are not, since the provider may already have acted.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrAuthentication)
}
