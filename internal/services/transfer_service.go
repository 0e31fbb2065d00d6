package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/heartlink/backend/internal/audit"
	"github.com/heartlink/backend/internal/config"
	"github.com/heartlink/backend/internal/models"
)

// TransferEngine moves value between two parties, or one party and the
// platform, as a single logical operation. Ledger-internal writes share
// one database transaction; side effects that cannot join it (connection
// creation, payout submission) run after commit and are covered by the
// compensation primitive. The debit is always the first mutation and the
// only step that ever needs compensating, so partial failure can lose
// visibility of funds temporarily but can never duplicate them.
type TransferEngine struct {
	db          *sql.DB
	ledger      *LedgerService
	fees        *FeePolicy
	cfg         *config.WalletConfig
	connections ConnectionStore
	payouts     *PayoutService
	notifier    Notifier
	audit       *audit.AuditLogger
}

func NewTransferEngine(db *sql.DB, ledger *LedgerService, fees *FeePolicy, cfg *config.WalletConfig,
	connections ConnectionStore, payouts *PayoutService, notifier Notifier) *TransferEngine {
	return &TransferEngine{
		db:          db,
		ledger:      ledger,
		fees:        fees,
		cfg:         cfg,
		connections: connections,
		payouts:     payouts,
		notifier:    notifier,
		audit:       audit.NewAuditLogger(),
	}
}

// TransferResult is the success payload of a balance-changing operation.
type TransferResult struct {
	TransferID   string `json:"transferId"`
	NetAmount    int64  `json:"netAmount"`
	Fee          int64  `json:"fee"`
	NewBalance   int64  `json:"newBalance"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// WithdrawalResult is the success payload of a withdrawal request. It
// records reservation, never settlement.
type WithdrawalResult struct {
	RequestID  string `json:"requestId"`
	NetAmount  int64  `json:"netAmount"`
	Fee        int64  `json:"fee"`
	NewBalance int64  `json:"newBalance"`
}

// transferLegs describes one fee-bearing movement: sender pays gross,
// recipient receives net, the platform account receives the fee.
type transferLegs struct {
	senderID      string
	recipientID   string
	gross         int64
	fee           int64
	net           int64
	senderType    string
	recipientType string
	sourceType    string
	metadata      models.Metadata
}

// SendGift debits the sender by gross and credits the recipient with
// gross minus the platform fee, all in one database transaction.
func (e *TransferEngine) SendGift(ctx context.Context, senderID, recipientID string, gross int64, message string) (*TransferResult, error) {
	if senderID == recipientID {
		return nil, ErrSelfTransfer
	}
	if gross < e.cfg.MinGiftAmount {
		return nil, ErrInvalidAmount
	}

	// Advisory pre-check for a friendlier error; the conditional debit
	// below is what actually prevents overdraw.
	balance, err := e.ledger.GetBalance(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if balance < gross {
		return nil, ErrInsufficientFunds
	}

	fee, net, err := e.fees.Compute(OpGift, gross)
	if err != nil {
		return nil, err
	}

	transferID := uuid.New().String()
	metadata := models.Metadata{"transfer_id": transferID}
	if message != "" {
		metadata["message"] = message
	}

	newBalance, err := e.applyTransfer(ctx, transferID, transferLegs{
		senderID:      senderID,
		recipientID:   recipientID,
		gross:         gross,
		fee:           fee,
		net:           net,
		senderType:    models.TxTypeGiftSent,
		recipientType: models.TxTypeGiftReceived,
		sourceType:    models.TxTypeGiftSent,
		metadata:      metadata,
	})
	if err != nil {
		e.audit.LogError(transferID, senderID, err)
		return nil, err
	}

	e.audit.LogTransfer(transferID, senderID, recipientID, gross, "SUCCESS")
	go e.notifier.Notify(context.Background(), recipientID, "You received a gift",
		fmt.Sprintf("Someone sent you a gift worth %d", net),
		map[string]any{"transferId": transferID, "amount": net})

	return &TransferResult{
		TransferID: transferID,
		NetAmount:  net,
		Fee:        fee,
		NewBalance: newBalance,
	}, nil
}

// UnlockDirectMessage charges the fixed unlock price, then creates a
// connection carrying the first message. The ledger movement commits
// first; if the connection cannot be created afterwards the whole
// movement is reversed before the error is returned.
func (e *TransferEngine) UnlockDirectMessage(ctx context.Context, senderID, recipientID, messageText string) (*TransferResult, error) {
	if senderID == recipientID {
		return nil, ErrSelfTransfer
	}

	connected, err := e.connections.Exists(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("connection lookup: %w", err)
	}
	if connected {
		return nil, ErrAlreadyConnected
	}

	gross := e.cfg.DirectMessagePrice
	balance, err := e.ledger.GetBalance(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if balance < gross {
		return nil, ErrInsufficientFunds
	}

	fee, net, err := e.fees.Compute(OpDirectMessage, gross)
	if err != nil {
		return nil, err
	}

	transferID := uuid.New().String()
	legs := transferLegs{
		senderID:      senderID,
		recipientID:   recipientID,
		gross:         gross,
		fee:           fee,
		net:           net,
		senderType:    models.TxTypeDirectMessageFee,
		recipientType: models.TxTypeGiftReceived,
		sourceType:    models.TxTypeDirectMessageFee,
		metadata:      models.Metadata{"transfer_id": transferID, "message": messageText},
	}

	newBalance, err := e.applyTransfer(ctx, transferID, legs)
	if err != nil {
		e.audit.LogError(transferID, senderID, err)
		return nil, err
	}

	connectionID, err := e.connections.CreateWithMessage(ctx, senderID, recipientID, messageText)
	if err != nil {
		log.Printf("[TRANSFER] Connection creation failed after debit, reversing %s: %v", transferID, err)
		if compErr := e.compensateTransfer(ctx, transferID, legs); compErr != nil {
			e.audit.LogManualReconciliation(transferID, senderID, gross, compErr)
			return nil, ErrCompensationFailed
		}
		e.audit.LogOperation(transferID, senderID, "TRANSFER_REVERSED", "connection creation failed")
		return nil, fmt.Errorf("%w: %v", ErrConnectionCreationFailed, err)
	}

	e.audit.LogTransfer(transferID, senderID, recipientID, gross, "SUCCESS")
	go e.notifier.Notify(context.Background(), recipientID, "New message request",
		"Someone paid to start a conversation with you",
		map[string]any{"transferId": transferID, "connectionId": connectionID})

	return &TransferResult{
		TransferID:   transferID,
		NetAmount:    net,
		Fee:          fee,
		NewBalance:   newBalance,
		ConnectionID: connectionID,
	}, nil
}

// RequestWithdrawal reserves gross from the account and queues a payout
// of gross minus fee. The request stays pending until the payout rail
// settles out-of-band.
func (e *TransferEngine) RequestWithdrawal(ctx context.Context, accountID string, gross int64, provider, destination string) (*WithdrawalResult, error) {
	if gross < e.cfg.MinWithdrawal {
		return nil, ErrInvalidAmount
	}
	if err := e.payouts.ValidateDestination(provider, destination); err != nil {
		return nil, err
	}

	balance, err := e.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance < gross {
		return nil, ErrInsufficientFunds
	}

	fee, net, err := e.fees.Compute(OpWithdrawal, gross)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	withdrawalTxID := uuid.New().String()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	newBalance, err := e.ledger.AdjustBalanceTx(tx, accountID, -gross)
	if err != nil {
		return nil, err
	}

	// Everything below runs after the debit; a failure rolls the debit
	// back with the rest of the transaction.
	if err := e.creditPlatformFeeTx(tx, withdrawalTxID, accountID, fee, models.TxTypeWithdrawal); err != nil {
		e.audit.LogError(requestID, accountID, err)
		return nil, fmt.Errorf("%w: %v", ErrWithdrawalCreationFailed, err)
	}

	err = e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID: withdrawalTxID,
		AccountID:     accountID,
		Type:          models.TxTypeWithdrawal,
		GrossAmount:   -gross,
		Fee:           0,
		NetAmount:     -gross,
		Status:        models.TxStatusPending,
		Metadata:      models.Metadata{"request_id": requestID, "provider": provider},
	})
	if err != nil {
		e.audit.LogError(requestID, accountID, err)
		return nil, fmt.Errorf("%w: %v", ErrWithdrawalCreationFailed, err)
	}

	_, err = tx.Exec(`
		INSERT INTO withdrawal_requests
		(id, account_id, gross_amount, fee, net_amount, provider, destination, status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		requestID, accountID, gross, fee, net, provider, destination,
		models.WithdrawalStatusPending, withdrawalTxID)
	if err != nil {
		e.audit.LogError(requestID, accountID, err)
		return nil, fmt.Errorf("%w: %v", ErrWithdrawalCreationFailed, err)
	}

	if err := tx.Commit(); err != nil {
		e.audit.LogError(requestID, accountID, err)
		return nil, fmt.Errorf("%w: %v", ErrWithdrawalCreationFailed, err)
	}

	e.audit.LogOperation(requestID, accountID, "WITHDRAWAL_REQUESTED",
		fmt.Sprintf("gross=%d fee=%d net=%d provider=%s", gross, fee, net, provider))

	// Settlement is out-of-band; a queueing failure is retried by ops
	// tooling, never unwound here.
	if err := e.payouts.Submit(ctx, requestID, accountID, provider, destination, net); err != nil {
		log.Printf("[TRANSFER] Failed to submit payout for request %s: %v", requestID, err)
	}

	go e.notifier.Notify(context.Background(), accountID, "Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %d is being processed", net),
		map[string]any{"requestId": requestID, "netAmount": net})

	return &WithdrawalResult{
		RequestID:  requestID,
		NetAmount:  net,
		Fee:        fee,
		NewBalance: newBalance,
	}, nil
}

// applyTransfer commits one fee-bearing movement: debit sender by gross,
// credit recipient with net, credit the platform account with the fee,
// and append the three log rows plus the earnings audit row. All of it
// is visible at once or not at all.
func (e *TransferEngine) applyTransfer(ctx context.Context, transferID string, legs transferLegs) (int64, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	senderBalance, err := e.ledger.AdjustBalanceTx(tx, legs.senderID, -legs.gross)
	if err != nil {
		return 0, err
	}

	if _, err := e.ledger.AdjustBalanceTx(tx, legs.recipientID, legs.net); err != nil {
		return 0, err
	}

	err = e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID:  uuid.New().String(),
		AccountID:      legs.senderID,
		Type:           legs.senderType,
		GrossAmount:    -legs.gross,
		Fee:            0,
		NetAmount:      -legs.gross,
		CounterpartyID: &legs.recipientID,
		Status:         models.TxStatusCompleted,
		Metadata:       legs.metadata,
	})
	if err != nil {
		return 0, err
	}

	feeTxID := uuid.New().String()
	err = e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID:  feeTxID,
		AccountID:      legs.recipientID,
		Type:           legs.recipientType,
		GrossAmount:    legs.gross,
		Fee:            legs.fee,
		NetAmount:      legs.net,
		CounterpartyID: &legs.senderID,
		Status:         models.TxStatusCompleted,
		Metadata:       legs.metadata,
	})
	if err != nil {
		return 0, err
	}

	if err := e.creditPlatformFeeTx(tx, feeTxID, legs.senderID, legs.fee, legs.sourceType); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return senderBalance, nil
}

// creditPlatformFeeTx moves the fee onto the platform account and
// records both the ledger leg and the append-only earnings row.
func (e *TransferEngine) creditPlatformFeeTx(tx *sql.Tx, feeTxID, payerID string, fee int64, sourceType string) error {
	if fee <= 0 {
		return nil
	}

	if _, err := e.ledger.AdjustBalanceTx(tx, e.cfg.PlatformAccountID, fee); err != nil {
		return err
	}

	err := e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID:  uuid.New().String(),
		AccountID:      e.cfg.PlatformAccountID,
		Type:           models.TxTypePlatformEarning,
		GrossAmount:    fee,
		Fee:            0,
		NetAmount:      fee,
		CounterpartyID: &payerID,
		Status:         models.TxStatusCompleted,
		Metadata:       models.Metadata{"source_transaction_id": feeTxID},
	})
	if err != nil {
		return err
	}

	return e.ledger.RecordEarningTx(tx, feeTxID, fee, sourceType)
}

// compensateTransfer is the single reversal primitive: it undoes a
// committed movement with offsetting rows in one transaction. It is
// unconditional; if any part of it fails nothing is reversed and the
// caller must escalate to manual reconciliation.
func (e *TransferEngine) compensateTransfer(ctx context.Context, transferID string, legs transferLegs) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.ledger.AdjustBalanceTx(tx, legs.senderID, legs.gross); err != nil {
		return err
	}
	if _, err := e.ledger.AdjustBalanceTx(tx, legs.recipientID, -legs.net); err != nil {
		return err
	}
	if legs.fee > 0 {
		if _, err := e.ledger.AdjustBalanceTx(tx, e.cfg.PlatformAccountID, -legs.fee); err != nil {
			return err
		}
	}

	reversalMeta := models.Metadata{"reversal_of": transferID}
	err = e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID:  uuid.New().String(),
		AccountID:      legs.senderID,
		Type:           legs.senderType,
		GrossAmount:    legs.gross,
		Fee:            0,
		NetAmount:      legs.gross,
		CounterpartyID: &legs.recipientID,
		Status:         models.TxStatusCompleted,
		Metadata:       reversalMeta,
	})
	if err != nil {
		return err
	}

	reversalFeeTxID := uuid.New().String()
	err = e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID:  reversalFeeTxID,
		AccountID:      legs.recipientID,
		Type:           legs.recipientType,
		GrossAmount:    -legs.gross,
		Fee:            -legs.fee,
		NetAmount:      -legs.net,
		CounterpartyID: &legs.senderID,
		Status:         models.TxStatusCompleted,
		Metadata:       reversalMeta,
	})
	if err != nil {
		return err
	}

	if legs.fee > 0 {
		err = e.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
			TransactionID:  uuid.New().String(),
			AccountID:      e.cfg.PlatformAccountID,
			Type:           models.TxTypePlatformEarning,
			GrossAmount:    -legs.fee,
			Fee:            0,
			NetAmount:      -legs.fee,
			CounterpartyID: &legs.senderID,
			Status:         models.TxStatusCompleted,
			Metadata:       reversalMeta,
		})
		if err != nil {
			return err
		}
		if err := e.ledger.RecordEarningTx(tx, reversalFeeTxID, -legs.fee, "reversal"); err != nil {
			return err
		}
	}

	return tx.Commit()
}
