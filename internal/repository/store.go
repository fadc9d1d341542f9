package repository

import (
	"context"
	"errors"
	"time"

	"mpesa-stk-gateway/internal/model"
)

var (
	// ErrNotFound is returned when no transaction exists for the given ID.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateID is returned when inserting an ID that already exists.
	ErrDuplicateID = errors.New("transaction already exists")
)

// TransactionStore is the shared source of truth between the initiation,
// callback and status-query paths. Implementations must be safe for
// concurrent use.
type TransactionStore interface {
	// Insert stores a new transaction. The first writer wins; a second
	// insert with the same checkout request ID fails with ErrDuplicateID.
	Insert(ctx context.Context, tx *model.Transaction) error

	// Get returns a snapshot of the transaction, or ErrNotFound.
	Get(ctx context.Context, checkoutRequestID string) (*model.Transaction, error)

	// Finalize transitions a Pending transaction to the given terminal
	// status, recording the result code and description. It reports
	// applied=false without error when the transaction is already
	// terminal (duplicate callback), and ErrNotFound when absent.
	Finalize(ctx context.Context, checkoutRequestID string, status model.Status, resultCode int, resultDesc string) (applied bool, err error)

	// ExpirePending fails every Pending transaction created before the
	// cutoff and returns the affected IDs.
	ExpirePending(ctx context.Context, cutoff time.Time, resultCode int, resultDesc string) ([]string, error)

	// Count returns the number of stored transactions.
	Count(ctx context.Context) (int64, error)

	// Close releases any underlying resources.
	Close() error
}
