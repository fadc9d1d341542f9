package mpesa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesa-stk-gateway/internal/config"
	"mpesa-stk-gateway/pkg/logger"
)

func testMpesaConfig(baseURL string) *config.MpesaConfig {
	return &config.MpesaConfig{
		BaseURL:         baseURL,
		ShortCode:       "174379",
		Passkey:         "pass",
		ConsumerKey:     "key",
		ConsumerSecret:  "secret",
		CallbackURL:     "https://example.com/api/v1/mpesa/callback",
		AccountRef:      "KukuHub",
		TransactionDesc: "Payment for products",
		RequestTimeout:  2 * time.Second,
		RetryCount:      3,
		RetryDelay:      time.Millisecond,
		TokenTTLDefault: 50 * time.Minute,
	}
}

func TestTokenFetchesAndCaches(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		assert.Equal(t, "Basic a2V5OnNlY3JldA==", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-1","expires_in":"3599"}`))
	}))
	defer server.Close()

	cache := NewCredentialCache(testMpesaConfig(server.URL), logger.New("ERROR"))

	token, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	token, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	assert.Equal(t, int32(1), fetches.Load())
}

func TestTokenConcurrentMissesCoalesce(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"access_token":"token-1","expires_in":"3599"}`))
	}))
	defer server.Close()

	cache := NewCredentialCache(testMpesaConfig(server.URL), logger.New("ERROR"))

	const callers = 20
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := cache.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for _, token := range tokens {
		assert.Equal(t, "token-1", token)
	}
}

func TestTokenRefreshesExpiredCredential(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(`{"access_token":"token-fresh","expires_in":"3599"}`))
	}))
	defer server.Close()

	cache := NewCredentialCache(testMpesaConfig(server.URL), logger.New("ERROR"))
	cache.credential = &Credential{
		Value:      "token-stale",
		ObtainedAt: time.Now().Add(-time.Hour),
		ExpiresAt:  time.Now().Add(-time.Minute),
	}

	token, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-fresh", token)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestTokenDefaultTTLWhenExpiryOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"token-1"}`))
	}))
	defer server.Close()

	cfg := testMpesaConfig(server.URL)
	cache := NewCredentialCache(cfg, logger.New("ERROR"))

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	require.NotNil(t, cache.credential)
	remaining := time.Until(cache.credential.ExpiresAt)
	assert.Greater(t, remaining, cfg.TokenTTLDefault-tokenRefreshSkew-time.Minute)
	assert.LessOrEqual(t, remaining, cfg.TokenTTLDefault)
}

func TestTokenFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
		{
			name: "missing token field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"expires_in":"3599"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			cache := NewCredentialCache(testMpesaConfig(server.URL), logger.New("ERROR"))

			_, err := cache.Token(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAuthentication)
			assert.Nil(t, cache.credential, "a failed fetch must not cache a partial result")
		})
	}
}

func TestTokenTransportError(t *testing.T) {
	cfg := testMpesaConfig("http://127.0.0.1:1")
	cache := NewCredentialCache(cfg, logger.New("ERROR"))

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestInvalidateDropsCredential(t *testing.T) {
	cache := NewCredentialCache(testMpesaConfig("http://unused"), logger.New("ERROR"))
	cache.credential = &Credential{
		Value:     "token-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	cache.Invalidate()
	assert.Nil(t, cache.credential)
}
