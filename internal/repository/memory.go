package repository

import (
	"context"
	"sync"
	"time"

	"mpesa-stk-gateway/internal/model"
)

// MemoryStore is an in-memory TransactionStore backed by a mutex-guarded map.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*model.Transaction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*model.Transaction),
	}
}

// Insert stores a new transaction, first writer wins.
func (s *MemoryStore) Insert(ctx context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.CheckoutRequestID]; exists {
		return ErrDuplicateID
	}

	stored := *tx
	s.transactions[tx.CheckoutRequestID] = &stored
	return nil
}

// Get returns a snapshot of the transaction, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, checkoutRequestID string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactions[checkoutRequestID]
	if !exists {
		return nil, ErrNotFound
	}

	snapshot := *tx
	return &snapshot, nil
}

// Finalize applies the terminal transition only if the transaction is
// still Pending.
func (s *MemoryStore) Finalize(ctx context.Context, checkoutRequestID string, status model.Status, resultCode int, resultDesc string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactions[checkoutRequestID]
	if !exists {
		return false, ErrNotFound
	}
	if tx.Status.Terminal() {
		return false, nil
	}

	code := resultCode
	tx.Status = status
	tx.ResultCode = &code
	tx.ResultDesc = resultDesc
	tx.UpdatedAt = time.Now()
	return true, nil
}

// ExpirePending fails stale Pending transactions and returns their IDs.
func (s *MemoryStore) ExpirePending(ctx context.Context, cutoff time.Time, resultCode int, resultDesc string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	now := time.Now()
	for id, tx := range s.transactions {
		if tx.Status != model.StatusPending || !tx.CreatedAt.Before(cutoff) {
			continue
		}
		code := resultCode
		tx.Status = model.StatusFailed
		tx.ResultCode = &code
		tx.ResultDesc = resultDesc
		tx.UpdatedAt = now
		expired = append(expired, id)
	}
	return expired, nil
}

// Count returns the number of stored transactions.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.transactions)), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ TransactionStore = (*MemoryStore)(nil)
