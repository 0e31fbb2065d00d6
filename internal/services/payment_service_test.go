package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/heartlink/backend/internal/gateway"
	"github.com/heartlink/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newPaymentService(t *testing.T) (*PaymentService, sqlmock.Sqlmock, *MockGatewayClient, *MockTierStore, func()) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)

	gw := &MockGatewayClient{}
	tiers := &MockTierStore{}
	service := NewPaymentService(db, NewLedgerService(db), gw, testWalletConfig(), tiers, noopNotifier{})
	return service, dbMock, gw, tiers, func() { db.Close() }
}

func pendingPaymentRows(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "amount", "currency", "gateway_transaction_id",
		"tier", "status", "created_at", "completed_at",
	}).AddRow("pp-1", "alice", 49900, "USD", "gw-1", "silver", status, time.Now(), nil)
}

func TestPaymentService_StartCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("creates gateway checkout and local record", func(t *testing.T) {
		service, dbMock, gw, _, closeDB := newPaymentService(t)
		defer closeDB()

		gw.On("CreateCheckout", ctx, "alice", "silver", int64(49900), "USD").
			Return(&gateway.Checkout{
				GatewayTransactionID: "gw-1",
				CheckoutURL:          "https://pay.example.com/c/gw-1",
				Status:               gateway.StatusPending,
			}, nil)

		dbMock.ExpectExec("INSERT INTO pending_payments").
			WillReturnResult(sqlmock.NewResult(1, 1))

		session, err := service.StartCheckout(ctx, "alice", "silver")
		assert.NoError(t, err)
		assert.Equal(t, "gw-1", session.GatewayTransactionID)
		assert.Equal(t, int64(49900), session.Amount)
		assert.True(t, strings.HasPrefix(session.QRCodeData, "data:image/png;base64,"))

		gw.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown tier rejected before the gateway call", func(t *testing.T) {
		service, dbMock, _, _, closeDB := newPaymentService(t)
		defer closeDB()

		_, err := service.StartCheckout(ctx, "alice", "platinum")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("gateway outage surfaces unchanged", func(t *testing.T) {
		service, dbMock, gw, _, closeDB := newPaymentService(t)
		defer closeDB()

		gw.On("CreateCheckout", ctx, "alice", "gold", int64(99900), "USD").
			Return(nil, gateway.ErrUnavailable)

		_, err := service.StartCheckout(ctx, "alice", "gold")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPaymentService_ConfirmCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("pending checkout grants a subscription once", func(t *testing.T) {
		service, dbMock, _, tiers, closeDB := newPaymentService(t)
		defer closeDB()

		tiers.On("SetTier", mock.Anything, "alice", "silver").Return(nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, account_id, amount").
			WithArgs("gw-1").
			WillReturnRows(pendingPaymentRows(models.PaymentStatusPending))
		dbMock.ExpectExec("UPDATE pending_payments").
			WithArgs(models.PaymentStatusCompleted, int64(49900), "USD", "pp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("INSERT INTO subscriptions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO platform_earnings").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		err := service.ConfirmCheckout(ctx, "gw-1", 49900, "USD")
		assert.NoError(t, err)

		tiers.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("redelivered confirmation is a no-op", func(t *testing.T) {
		service, dbMock, _, tiers, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, account_id, amount").
			WithArgs("gw-1").
			WillReturnRows(pendingPaymentRows(models.PaymentStatusCompleted))
		dbMock.ExpectRollback()

		err := service.ConfirmCheckout(ctx, "gw-1", 49900, "USD")
		assert.NoError(t, err)

		tiers.AssertNotCalled(t, "SetTier", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown gateway id is logged and ignored", func(t *testing.T) {
		service, dbMock, _, _, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, account_id, amount").
			WithArgs("gw-unknown").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		dbMock.ExpectRollback()

		err := service.ConfirmCheckout(ctx, "gw-unknown", 49900, "USD")
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("database failure keeps the checkout pending", func(t *testing.T) {
		service, dbMock, _, tiers, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, account_id, amount").
			WithArgs("gw-1").
			WillReturnRows(pendingPaymentRows(models.PaymentStatusPending))
		dbMock.ExpectExec("UPDATE pending_payments").
			WillReturnError(errors.New("disk full"))
		dbMock.ExpectRollback()

		err := service.ConfirmCheckout(ctx, "gw-1", 49900, "USD")
		assert.Error(t, err)

		tiers.AssertNotCalled(t, "SetTier", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPaymentService_VerifyPendingCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("gateway outage changes nothing locally", func(t *testing.T) {
		service, dbMock, gw, _, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectQuery("SELECT account_id FROM pending_payments").
			WithArgs("gw-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("alice"))
		gw.On("GetCheckoutStatus", ctx, "gw-1").Return(nil, gateway.ErrUnavailable)

		_, err := service.VerifyPendingCheckout(ctx, "alice", "gw-1")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("still pending leaves state alone", func(t *testing.T) {
		service, dbMock, gw, _, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectQuery("SELECT account_id FROM pending_payments").
			WithArgs("gw-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("alice"))
		gw.On("GetCheckoutStatus", ctx, "gw-1").
			Return(&gateway.Checkout{GatewayTransactionID: "gw-1", Status: gateway.StatusPending}, nil)

		status, err := service.VerifyPendingCheckout(ctx, "alice", "gw-1")
		assert.NoError(t, err)
		assert.Equal(t, gateway.StatusPending, status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("foreign checkout reads as not found", func(t *testing.T) {
		service, dbMock, gw, _, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectQuery("SELECT account_id FROM pending_payments").
			WithArgs("gw-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("alice"))

		_, err := service.VerifyPendingCheckout(ctx, "mallory", "gw-1")
		assert.ErrorIs(t, err, ErrCheckoutNotFound)

		gw.AssertNotCalled(t, "GetCheckoutStatus", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown checkout reads as not found", func(t *testing.T) {
		service, dbMock, gw, _, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectQuery("SELECT account_id FROM pending_payments").
			WithArgs("gw-unknown").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

		_, err := service.VerifyPendingCheckout(ctx, "alice", "gw-unknown")
		assert.ErrorIs(t, err, ErrCheckoutNotFound)

		gw.AssertNotCalled(t, "GetCheckoutStatus", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("succeeded triggers reconciliation", func(t *testing.T) {
		service, dbMock, gw, tiers, closeDB := newPaymentService(t)
		defer closeDB()

		dbMock.ExpectQuery("SELECT account_id FROM pending_payments").
			WithArgs("gw-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("alice"))
		gw.On("GetCheckoutStatus", ctx, "gw-1").
			Return(&gateway.Checkout{
				GatewayTransactionID: "gw-1",
				Status:               gateway.StatusSucceeded,
				Amount:               49900,
				Currency:             "USD",
			}, nil)
		tiers.On("SetTier", mock.Anything, "alice", "silver").Return(nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, account_id, amount").
			WithArgs("gw-1").
			WillReturnRows(pendingPaymentRows(models.PaymentStatusPending))
		dbMock.ExpectExec("UPDATE pending_payments").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("INSERT INTO subscriptions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO platform_earnings").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		status, err := service.VerifyPendingCheckout(ctx, "alice", "gw-1")
		assert.NoError(t, err)
		assert.Equal(t, gateway.StatusSucceeded, status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPaymentService_ExpireSubscriptions(t *testing.T) {
	service, dbMock, _, tiers, closeDB := newPaymentService(t)
	defer closeDB()

	tiers.On("ClearTier", mock.Anything, "alice").Return(nil)
	tiers.On("ClearTier", mock.Anything, "bob").Return(nil)

	dbMock.ExpectQuery("UPDATE subscriptions SET is_active").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("alice").AddRow("bob"))

	expired, err := service.ExpireSubscriptions(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, expired)

	tiers.AssertExpectations(t)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
