package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/heartlink/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func pendingRequestRows(requestID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "account_id", "gross_amount", "fee", "net_amount",
		"provider", "destination", "status", "transaction_id", "created_at", "updated_at",
	}).AddRow(requestID, "alice", 10000, 500, 9500,
		"mpesa", "+254712345678", models.WithdrawalStatusPending, "tx-1", now, now)
}

func newWithdrawalService(t *testing.T) (*WithdrawalService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	service := NewWithdrawalService(db, NewLedgerService(db), testWalletConfig(), noopNotifier{})
	return service, mock, func() { db.Close() }
}

func TestWithdrawalService_MarkPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("pending request settles", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs("req-1").
			WillReturnRows(pendingRequestRows("req-1"))
		mock.ExpectExec("UPDATE withdrawal_requests SET status").
			WithArgs(models.WithdrawalStatusPaid, "req-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE wallet_transactions SET status").
			WithArgs(models.TxStatusCompleted, "tx-1", models.TxStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		request, err := service.MarkPaid(ctx, "req-1")
		assert.NoError(t, err)
		assert.Equal(t, models.WithdrawalStatusPaid, request.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("paid request cannot be paid again", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		now := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "account_id", "gross_amount", "fee", "net_amount",
				"provider", "destination", "status", "transaction_id", "created_at", "updated_at",
			}).AddRow("req-1", "alice", 10000, 500, 9500,
				"mpesa", "+254712345678", models.WithdrawalStatusPaid, "tx-1", now, now))
		mock.ExpectRollback()

		_, err := service.MarkPaid(ctx, "req-1")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWithdrawalService_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("rejection refunds gross and reverses the fee", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs("req-1").
			WillReturnRows(pendingRequestRows("req-1"))
		mock.ExpectExec("UPDATE withdrawal_requests SET status").
			WithArgs(models.WithdrawalStatusRejected, "req-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE wallet_transactions SET status").
			WithArgs(models.TxStatusFailed, "tx-1", models.TxStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(10000), "alice").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(60000))
		mock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE accounts").
			WithArgs(int64(-500), "platform").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(0))
		mock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("INSERT INTO platform_earnings").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		request, err := service.Reject(ctx, "req-1", "suspicious destination")
		assert.NoError(t, err)
		assert.Equal(t, models.WithdrawalStatusRejected, request.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected request stays rejected", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		now := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "account_id", "gross_amount", "fee", "net_amount",
				"provider", "destination", "status", "transaction_id", "created_at", "updated_at",
			}).AddRow("req-1", "alice", 10000, 500, 9500,
				"mpesa", "+254712345678", models.WithdrawalStatusRejected, "tx-1", now, now))
		mock.ExpectRollback()

		_, err := service.Reject(ctx, "req-1", "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWithdrawalService_Handlers(t *testing.T) {
	t.Run("unknown request returns 404", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		r := chi.NewRouter()
		r.Put("/admin/withdrawals/{requestId}/paid", service.MarkWithdrawalPaid)

		req := httptest.NewRequest("PUT", "/admin/withdrawals/missing/paid", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("state conflict returns 409", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		now := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "account_id", "gross_amount", "fee", "net_amount",
				"provider", "destination", "status", "transaction_id", "created_at", "updated_at",
			}).AddRow("req-1", "alice", 10000, 500, 9500,
				"mpesa", "+254712345678", models.WithdrawalStatusPaid, "tx-1", now, now))
		mock.ExpectRollback()

		r := chi.NewRouter()
		r.Put("/admin/withdrawals/{requestId}/paid", service.MarkWithdrawalPaid)

		req := httptest.NewRequest("PUT", "/admin/withdrawals/req-1/paid", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("list pending", func(t *testing.T) {
		service, mock, closeDB := newWithdrawalService(t)
		defer closeDB()

		mock.ExpectQuery("SELECT id, account_id, gross_amount").
			WithArgs(models.WithdrawalStatusPending, 100).
			WillReturnRows(pendingRequestRows("req-1"))

		req := httptest.NewRequest("GET", "/admin/withdrawals", nil)
		w := httptest.NewRecorder()
		service.ListPendingWithdrawals(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "req-1")
	})
}
