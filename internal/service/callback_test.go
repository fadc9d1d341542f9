package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesa-stk-gateway/internal/model"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/pkg/logger"
)

func newTestCallbackService(t *testing.T) (*CallbackService, *repository.MemoryStore, *recordingPublisher) {
	t.Helper()
	store := repository.NewMemoryStore()
	publisher := &recordingPublisher{}
	service := NewCallbackService(store, publisher, logger.New("ERROR"))
	return service, store, publisher
}

func insertPending(t *testing.T, store *repository.MemoryStore, id string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.Insert(context.Background(), &model.Transaction{
		CheckoutRequestID: id,
		Amount:            decimal.NewFromInt(500),
		PhoneNumber:       "254712345678",
		Status:            model.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
}

func TestHandleCallbackCompletes(t *testing.T) {
	service, store, publisher := newTestCallbackService(t)
	insertPending(t, store, "ws_CO_1")

	err := service.HandleCallback(context.Background(), model.StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
	})
	require.NoError(t, err)

	tx, err := store.Get(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, tx.Status)
	require.NotNil(t, tx.ResultCode)
	assert.Equal(t, 0, *tx.ResultCode)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ws_CO_1", events[0].CheckoutRequestID)
	assert.Equal(t, model.StatusCompleted, events[0].Status)
	assert.NotEmpty(t, events[0].EventID)
}

func TestHandleCallbackFails(t *testing.T) {
	service, store, publisher := newTestCallbackService(t)
	insertPending(t, store, "ws_CO_1")

	err := service.HandleCallback(context.Background(), model.StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	require.NoError(t, err)

	tx, err := store.Get(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, tx.Status)
	require.NotNil(t, tx.ResultCode)
	assert.Equal(t, 1032, *tx.ResultCode)
	assert.Equal(t, "Request cancelled by user", tx.ResultDesc)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusFailed, events[0].Status)
	assert.Equal(t, 1032, events[0].ResultCode)
}

func TestHandleCallbackDuplicateIsNoOp(t *testing.T) {
	service, store, publisher := newTestCallbackService(t)
	insertPending(t, store, "ws_CO_1")

	callback := model.StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		ResultDesc:        "Success",
	}
	require.NoError(t, service.HandleCallback(context.Background(), callback))
	require.NoError(t, service.HandleCallback(context.Background(), callback), "redelivery must not error")

	tx, err := store.Get(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, tx.Status)

	assert.Len(t, publisher.Events(), 1, "a duplicate delivery must not publish a second event")
}

func TestHandleCallbackTerminalStateIsMonotonic(t *testing.T) {
	service, store, _ := newTestCallbackService(t)
	insertPending(t, store, "ws_CO_1")

	require.NoError(t, service.HandleCallback(context.Background(), model.StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        1037,
		ResultDesc:        "DS timeout",
	}))

	// A late success callback must not resurrect a failed transaction.
	require.NoError(t, service.HandleCallback(context.Background(), model.StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		ResultDesc:        "Success",
	}))

	tx, err := store.Get(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, tx.Status)
	require.NotNil(t, tx.ResultCode)
	assert.Equal(t, 1037, *tx.ResultCode)
}

func TestHandleCallbackUnknownID(t *testing.T) {
	service, _, publisher := newTestCallbackService(t)

	err := service.HandleCallback(context.Background(), model.StkCallback{
		CheckoutRequestID: "unknown-id",
		ResultCode:        0,
		ResultDesc:        "Success",
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, publisher.Events())
}
