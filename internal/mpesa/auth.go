package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mpesa-stk-gateway/internal/config"
	"mpesa-stk-gateway/pkg/logger"
)

// tokenRefreshSkew is subtracted from the provider-reported lifetime so a
// token is never handed out moments before it expires server-side.
const tokenRefreshSkew = 30 * time.Second

// Credential is a cached bearer token for the Daraja API.
type Credential struct {
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// CredentialCache obtains and caches the OAuth bearer token used to
// authenticate outbound Daraja calls. Concurrent callers during a cache
// miss are coalesced into a single fetch.
type CredentialCache struct {
	httpClient *http.Client
	config     *config.MpesaConfig
	logger     *logger.Logger

	mu         sync.Mutex
	credential *Credential
}

// NewCredentialCache creates a credential cache for the given provider config.
func NewCredentialCache(cfg *config.MpesaConfig, log *logger.Logger) *CredentialCache {
	return &CredentialCache{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		config: cfg,
		logger: log,
	}
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// credential is absent or expired. The mutex is held across the fetch so
// simultaneous misses issue exactly one request.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.credential != nil && time.Now().Before(c.credential.ExpiresAt) {
		return c.credential.Value, nil
	}

	credential, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.credential = credential
	c.logger.Info("Obtained new access token",
		"expires_at", credential.ExpiresAt.Format(time.RFC3339),
	)
	return credential.Value, nil
}

// Invalidate drops the cached credential so the next Token call fetches a
// fresh one. Used when the provider rejects a token before its reported expiry.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = nil
}

// tokenResponse is the Daraja OAuth response. expires_in arrives as a
// string of seconds ("3599") in the sandbox, so json.Number covers both.
type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// fetch performs the authenticated token request.
func (c *CredentialCache) fetch(ctx context.Context) (*Credential, error) {
	url := c.config.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create token request: %v", ErrAuthentication, err)
	}
	req.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request failed: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrAuthentication, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", ErrAuthentication, err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrAuthentication)
	}

	ttl := c.config.TokenTTLDefault
	if seconds, err := body.ExpiresIn.Int64(); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if ttl > tokenRefreshSkew {
		ttl -= tokenRefreshSkew
	}

	now := time.Now()
	return &Credential{
		Value:      body.AccessToken,
		ObtainedAt: now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}
