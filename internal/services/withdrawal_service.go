package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/heartlink/backend/internal/audit"
	"github.com/heartlink/backend/internal/config"
	"github.com/heartlink/backend/internal/models"
)

// WithdrawalService drives the payout request state machine. A request
// leaves pending exactly once: paid when the rail confirms settlement,
// rejected when ops declines it. Rejection credits the reserved gross
// back to the account and reverses the fee.
type WithdrawalService struct {
	db       *sql.DB
	ledger   *LedgerService
	cfg      *config.WalletConfig
	notifier Notifier
	audit    *audit.AuditLogger
}

func NewWithdrawalService(db *sql.DB, ledger *LedgerService, cfg *config.WalletConfig, notifier Notifier) *WithdrawalService {
	return &WithdrawalService{
		db:       db,
		ledger:   ledger,
		cfg:      cfg,
		notifier: notifier,
		audit:    audit.NewAuditLogger(),
	}
}

func (ws *WithdrawalService) lockRequest(tx *sql.Tx, requestID string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := tx.QueryRow(`
		SELECT id, account_id, gross_amount, fee, net_amount, provider, destination, status, transaction_id, created_at, updated_at
		FROM withdrawal_requests
		WHERE id = $1
		FOR UPDATE`, requestID).Scan(
		&w.ID, &w.AccountID, &w.GrossAmount, &w.Fee, &w.NetAmount,
		&w.Provider, &w.Destination, &w.Status, &w.TransactionID, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// MarkPaid records external settlement of a pending request and
// completes its pending ledger row.
func (ws *WithdrawalService) MarkPaid(ctx context.Context, requestID string) (*models.WithdrawalRequest, error) {
	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := ws.lockRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WithdrawalStatusPending {
		return nil, ErrInvalidStateTransition
	}

	if _, err := tx.Exec(`
		UPDATE withdrawal_requests SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.WithdrawalStatusPaid, requestID); err != nil {
		return nil, err
	}
	if err := ws.ledger.UpdateTransactionStatusTx(tx, w.TransactionID, models.TxStatusCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	w.Status = models.WithdrawalStatusPaid
	ws.audit.LogOperation(requestID, w.AccountID, "WITHDRAWAL_PAID",
		fmt.Sprintf("net=%d provider=%s", w.NetAmount, w.Provider))
	go ws.notifier.Notify(context.Background(), w.AccountID, "Withdrawal paid",
		fmt.Sprintf("Your withdrawal of %d has been paid out", w.NetAmount),
		map[string]any{"requestId": requestID})

	return w, nil
}

// Reject declines a pending request and restores the account: the full
// gross comes back, the withdrawal row is marked failed, and the fee is
// reversed with offsetting rows. The compensating credit is
// unconditional; if any write fails the whole rejection rolls back and
// the request stays pending.
func (ws *WithdrawalService) Reject(ctx context.Context, requestID, reason string) (*models.WithdrawalRequest, error) {
	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := ws.lockRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WithdrawalStatusPending {
		return nil, ErrInvalidStateTransition
	}

	if _, err := tx.Exec(`
		UPDATE withdrawal_requests SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.WithdrawalStatusRejected, requestID); err != nil {
		return nil, err
	}
	if err := ws.ledger.UpdateTransactionStatusTx(tx, w.TransactionID, models.TxStatusFailed); err != nil {
		return nil, err
	}

	if _, err := ws.ledger.AdjustBalanceTx(tx, w.AccountID, w.GrossAmount); err != nil {
		return nil, err
	}

	refundMeta := models.Metadata{"refund_of": requestID}
	if reason != "" {
		refundMeta["reason"] = reason
	}
	refundTxID := uuid.New().String()
	err = ws.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID: refundTxID,
		AccountID:     w.AccountID,
		Type:          models.TxTypeWithdrawal,
		GrossAmount:   w.GrossAmount,
		Fee:           0,
		NetAmount:     w.GrossAmount,
		Status:        models.TxStatusCompleted,
		Metadata:      refundMeta,
	})
	if err != nil {
		return nil, err
	}

	if w.Fee > 0 {
		if _, err := ws.ledger.AdjustBalanceTx(tx, ws.cfg.PlatformAccountID, -w.Fee); err != nil {
			return nil, err
		}
		err = ws.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
			TransactionID:  uuid.New().String(),
			AccountID:      ws.cfg.PlatformAccountID,
			Type:           models.TxTypePlatformEarning,
			GrossAmount:    -w.Fee,
			Fee:            0,
			NetAmount:      -w.Fee,
			CounterpartyID: &w.AccountID,
			Status:         models.TxStatusCompleted,
			Metadata:       refundMeta,
		})
		if err != nil {
			return nil, err
		}
		if err := ws.ledger.RecordEarningTx(tx, refundTxID, -w.Fee, "withdrawal_reversal"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	w.Status = models.WithdrawalStatusRejected
	ws.audit.LogOperation(requestID, w.AccountID, "WITHDRAWAL_REJECTED",
		fmt.Sprintf("gross=%d refunded", w.GrossAmount))
	go ws.notifier.Notify(context.Background(), w.AccountID, "Withdrawal rejected",
		fmt.Sprintf("Your withdrawal was rejected and %d was returned to your wallet", w.GrossAmount),
		map[string]any{"requestId": requestID, "reason": reason})

	return w, nil
}

// ListPending returns pending requests for the ops console.
func (ws *WithdrawalService) ListPending(ctx context.Context, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := ws.db.QueryContext(ctx, `
		SELECT id, account_id, gross_amount, fee, net_amount, provider, destination, status, transaction_id, created_at, updated_at
		FROM withdrawal_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, models.WithdrawalStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.WithdrawalRequest{}
	for rows.Next() {
		var w models.WithdrawalRequest
		err := rows.Scan(
			&w.ID, &w.AccountID, &w.GrossAmount, &w.Fee, &w.NetAmount,
			&w.Provider, &w.Destination, &w.Status, &w.TransactionID, &w.CreatedAt, &w.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, w)
	}
	return requests, rows.Err()
}

// ListPendingWithdrawals lists requests waiting for settlement or review.
// @Summary List pending withdrawals
// @Description Get withdrawal requests awaiting settlement or review
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.WithdrawalRequest
// @Failure 500 {object} ErrorResponse
// @Router /admin/withdrawals [get]
func (ws *WithdrawalService) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := ws.ListPending(r.Context(), 100)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to list pending requests: %v", err)
		SendErrorResponse(w, "Failed to list withdrawals", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"withdrawals": requests,
		"count":       len(requests),
	})
}

// MarkWithdrawalPaid confirms external settlement of a request.
// @Summary Mark withdrawal paid
// @Description Record that the payout rail settled a pending withdrawal
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param requestId path string true "Withdrawal request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/withdrawals/{requestId}/paid [put]
func (ws *WithdrawalService) MarkWithdrawalPaid(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	request, err := ws.MarkPaid(r.Context(), requestID)
	if err != nil {
		ws.writeTransitionError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "withdrawal": request})
}

// RejectWithdrawal declines a request and refunds the reserved amount.
// @Summary Reject withdrawal
// @Description Decline a pending withdrawal and refund the account
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param requestId path string true "Withdrawal request ID"
// @Param request body object{reason=string} false "Rejection reason"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/withdrawals/{requestId}/reject [put]
func (ws *WithdrawalService) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	request, err := ws.Reject(r.Context(), requestID, req.Reason)
	if err != nil {
		ws.writeTransitionError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "withdrawal": request})
}

func (ws *WithdrawalService) writeTransitionError(w http.ResponseWriter, requestID string, err error) {
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Withdrawal request not found", http.StatusNotFound, nil)
		return
	}
	log.Printf("[WITHDRAWAL] Transition failed for %s: %v", requestID, err)
	SendErrorResponse(w, err.Error(), statusForError(err), nil)
}
