package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"mpesa-stk-gateway/internal/model"
)

// SQLiteStore is a TransactionStore persisted in a SQLite database, for
// deployments that need transactions to survive a restart.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent finalization.
	db.SetMaxOpenConns(1)

	// Create table if not exists
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			checkout_request_id TEXT PRIMARY KEY,
			amount TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			status TEXT NOT NULL,
			result_code INTEGER,
			result_desc TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_status_created_at ON transactions(status, created_at);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Insert stores a new transaction, first writer wins.
func (s *SQLiteStore) Insert(ctx context.Context, tx *model.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (checkout_request_id, amount, phone_number, status, result_code, result_desc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.CheckoutRequestID, tx.Amount.String(), tx.PhoneNumber, string(tx.Status), nullableInt(tx.ResultCode), tx.ResultDesc, tx.CreatedAt, tx.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateID
	}
	return err
}

// Get returns a snapshot of the transaction, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, checkoutRequestID string) (*model.Transaction, error) {
	var (
		tx         model.Transaction
		amount     string
		status     string
		resultCode sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT checkout_request_id, amount, phone_number, status, result_code, result_desc, created_at, updated_at
		FROM transactions
		WHERE checkout_request_id = ?
	`, checkoutRequestID).Scan(
		&tx.CheckoutRequestID,
		&amount,
		&tx.PhoneNumber,
		&status,
		&resultCode,
		&tx.ResultDesc,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for %s: %w", checkoutRequestID, err)
	}
	tx.Status = model.Status(status)
	if resultCode.Valid {
		code := int(resultCode.Int64)
		tx.ResultCode = &code
	}
	return &tx, nil
}

// Finalize applies the terminal transition only if the transaction is
// still Pending. The WHERE clause is the compare-and-swap.
func (s *SQLiteStore) Finalize(ctx context.Context, checkoutRequestID string, status model.Status, resultCode int, resultDesc string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, result_code = ?, result_desc = ?, updated_at = ?
		WHERE checkout_request_id = ? AND status = ?
	`, string(status), resultCode, resultDesc, time.Now(), checkoutRequestID, string(model.StatusPending))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	// Not updated: distinguish "already terminal" from "never existed".
	var exists int
	err = s.db.QueryRowContext(ctx, `
		SELECT 1 FROM transactions WHERE checkout_request_id = ?
	`, checkoutRequestID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// ExpirePending fails stale Pending transactions and returns their IDs.
func (s *SQLiteStore) ExpirePending(ctx context.Context, cutoff time.Time, resultCode int, resultDesc string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkout_request_id FROM transactions
		WHERE status = ? AND created_at < ?
	`, string(model.StatusPending), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []string
	for _, id := range ids {
		applied, err := s.Finalize(ctx, id, model.StatusFailed, resultCode, resultDesc)
		if err != nil {
			return expired, err
		}
		if applied {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// Count returns the number of stored transactions.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	// go-sqlite3 reports constraint violations in the error text; matching
	// on it avoids importing the driver's error types here.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ TransactionStore = (*SQLiteStore)(nil)
