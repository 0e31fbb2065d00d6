package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heartlink/backend/internal/models"
)

// LedgerService owns the accounts table and the append-only transaction
// log. Balance mutation is a single conditional update so two concurrent
// debits can never both succeed past zero; there is no read-then-write
// path anywhere in this file.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

const adjustBalanceQuery = `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE user_id = $2 AND balance + $1 >= 0
		RETURNING balance`

// AdjustBalance applies a signed delta to an account. The guard
// "balance + delta >= 0" is evaluated inside the update itself; a zero
// row count means the account is missing or the debit would overdraw.
func (s *LedgerService) AdjustBalance(ctx context.Context, accountID string, delta int64) (int64, error) {
	var newBalance int64
	err := s.db.QueryRowContext(ctx, adjustBalanceQuery, delta, accountID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, s.classifyAdjustFailure(ctx, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust balance for %s: %w", accountID, err)
	}
	return newBalance, nil
}

// AdjustBalanceTx is AdjustBalance inside a caller-owned transaction.
func (s *LedgerService) AdjustBalanceTx(tx *sql.Tx, accountID string, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(adjustBalanceQuery, delta, accountID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`, accountID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrAccountNotFound
		}
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("adjust balance for %s: %w", accountID, err)
	}
	return newBalance, nil
}

func (s *LedgerService) classifyAdjustFailure(ctx context.Context, accountID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`, accountID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return ErrInsufficientFunds
}

// GetBalance is a point-in-time read. Callers must not base mutation
// decisions on it; the conditional update is the source of truth.
func (s *LedgerService) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// RecordTransactionTx appends one row to the transaction log.
func (s *LedgerService) RecordTransactionTx(tx *sql.Tx, txn *models.WalletTransaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	_, err := tx.Exec(`
		INSERT INTO wallet_transactions
		(transaction_id, account_id, type, gross_amount, fee, net_amount, counterparty_account_id, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.TransactionID, txn.AccountID, txn.Type, txn.GrossAmount, txn.Fee,
		txn.NetAmount, txn.CounterpartyID, txn.Status, txn.Metadata, txn.CreatedAt)
	return err
}

// RecordEarningTx appends one platform revenue audit row.
func (s *LedgerService) RecordEarningTx(tx *sql.Tx, transactionID string, amount int64, sourceType string) error {
	_, err := tx.Exec(`
		INSERT INTO platform_earnings (transaction_id, amount, source_type, created_at)
		VALUES ($1, $2, $3, $4)`,
		transactionID, amount, sourceType, time.Now())
	return err
}

// UpdateTransactionStatusTx moves a pending transaction to a terminal
// status. Completed rows never change again.
func (s *LedgerService) UpdateTransactionStatusTx(tx *sql.Tx, transactionID, status string) error {
	result, err := tx.Exec(`
		UPDATE wallet_transactions SET status = $1
		WHERE transaction_id = $2 AND status = $3`,
		status, transactionID, models.TxStatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidStateTransition
	}
	return nil
}

// GetTransactions returns the most recent log rows for one account.
func (s *LedgerService) GetTransactions(ctx context.Context, accountID string, limit int) ([]models.WalletTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, type, gross_amount, fee, net_amount,
		       counterparty_account_id, status, metadata, created_at
		FROM wallet_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.WalletTransaction{}
	for rows.Next() {
		var txn models.WalletTransaction
		err := rows.Scan(
			&txn.ID, &txn.TransactionID, &txn.AccountID, &txn.Type, &txn.GrossAmount,
			&txn.Fee, &txn.NetAmount, &txn.CounterpartyID, &txn.Status, &txn.Metadata, &txn.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

// TotalEarnings sums the platform revenue audit trail since a cutoff.
func (s *LedgerService) TotalEarnings(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM platform_earnings WHERE created_at >= $1`,
		since).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
