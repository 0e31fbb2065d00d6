package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/heartlink/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestLedgerService_AdjustBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("credit succeeds", func(t *testing.T) {
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(5000), "user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(15000))

		balance, err := service.AdjustBalance(ctx, "user1", 5000)
		assert.NoError(t, err)
		assert.Equal(t, int64(15000), balance)
	})

	t.Run("debit past zero is insufficient funds", func(t *testing.T) {
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-20000), "user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := service.AdjustBalance(ctx, "user1", -20000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-100), "ghost").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := service.AdjustBalance(ctx, "ghost", -100)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_AdjustBalanceTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("debit inside transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-1000), "user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(9000))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)

		balance, err := service.AdjustBalanceTx(tx, "user1", -1000)
		assert.NoError(t, err)
		assert.Equal(t, int64(9000), balance)
		assert.NoError(t, tx.Commit())
	})

	t.Run("concurrent drain surfaces as insufficient funds", func(t *testing.T) {
		// The guard row-matches nothing when another debit got there
		// first, even if an earlier advisory read looked fine.
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-5000), "user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = service.AdjustBalanceTx(tx, "user1", -5000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, tx.Rollback())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("existing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM accounts").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(12345))

		balance, err := service.GetBalance(ctx, "user1")
		assert.NoError(t, err)
		assert.Equal(t, int64(12345), balance)
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM accounts").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		_, err := service.GetBalance(ctx, "ghost")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_UpdateTransactionStatusTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("pending moves to completed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE wallet_transactions SET status").
			WithArgs(models.TxStatusCompleted, "tx1", models.TxStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)
		assert.NoError(t, service.UpdateTransactionStatusTx(tx, "tx1", models.TxStatusCompleted))
		assert.NoError(t, tx.Commit())
	})

	t.Run("terminal row never changes again", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE wallet_transactions SET status").
			WithArgs(models.TxStatusFailed, "tx1", models.TxStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		assert.NoError(t, err)
		err = service.UpdateTransactionStatusTx(tx, "tx1", models.TxStatusFailed)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, tx.Rollback())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_GetTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	now := time.Now()
	mock.ExpectQuery("SELECT id, transaction_id, account_id").
		WithArgs("user1", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "transaction_id", "account_id", "type", "gross_amount", "fee",
			"net_amount", "counterparty_account_id", "status", "metadata", "created_at",
		}).
			AddRow(1, "tx1", "user1", models.TxTypeGiftSent, -10000, 0, -10000, "user2", models.TxStatusCompleted, []byte(`{"transfer_id":"tr1"}`), now).
			AddRow(2, "tx2", "user1", models.TxTypeGiftReceived, 5000, 500, 4500, "user3", models.TxStatusCompleted, []byte(`{}`), now))

	transactions, err := service.GetTransactions(context.Background(), "user1", 10)
	assert.NoError(t, err)
	assert.Len(t, transactions, 2)
	assert.Equal(t, int64(-10000), transactions[0].NetAmount)
	assert.Equal(t, "tr1", transactions[0].Metadata["transfer_id"])
	assert.Equal(t, int64(500), transactions[1].Fee)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_TotalEarnings(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	since := time.Now().AddDate(0, -1, 0)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(123456))

	total, err := service.TotalEarnings(context.Background(), since)
	assert.NoError(t, err)
	assert.Equal(t, int64(123456), total)

	assert.NoError(t, mock.ExpectationsWereMet())
}
