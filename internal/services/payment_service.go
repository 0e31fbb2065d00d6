package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/heartlink/backend/internal/audit"
	"github.com/heartlink/backend/internal/config"
	"github.com/heartlink/backend/internal/gateway"
	"github.com/heartlink/backend/internal/models"
	qrcode "github.com/skip2/go-qrcode"
)

// TierStore flips the premium flag the rest of the product reads. It is
// deliberately outside the reconciliation transaction: entitlement
// display can lag a committed payment, but a payment is never lost
// because the profile write failed.
type TierStore interface {
	SetTier(ctx context.Context, userID, tier string) error
	ClearTier(ctx context.Context, userID string) error
}

// SQLTierStore writes the denormalized premium_tier column on users.
type SQLTierStore struct {
	db *sql.DB
}

func NewSQLTierStore(db *sql.DB) *SQLTierStore {
	return &SQLTierStore{db: db}
}

func (s *SQLTierStore) SetTier(ctx context.Context, userID, tier string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET premium_tier = $1 WHERE id = $2`, tier, userID)
	return err
}

func (s *SQLTierStore) ClearTier(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET premium_tier = NULL WHERE id = $1`, userID)
	return err
}

// PaymentService reconciles external gateway checkouts into premium
// subscriptions. Confirmation is idempotent on the gateway transaction
// id: the gateway retries webhooks and clients retry verification, and
// each checkout grants exactly one subscription period.
type PaymentService struct {
	db         *sql.DB
	ledger     *LedgerService
	gateway    gateway.Client
	cfg        *config.WalletConfig
	tiers      TierStore
	notifier   Notifier
	audit      *audit.AuditLogger
	validation *ValidationHelper
}

func NewPaymentService(db *sql.DB, ledger *LedgerService, gw gateway.Client, cfg *config.WalletConfig, tiers TierStore, notifier Notifier) *PaymentService {
	return &PaymentService{
		db:         db,
		ledger:     ledger,
		gateway:    gw,
		cfg:        cfg,
		tiers:      tiers,
		notifier:   notifier,
		audit:      audit.NewAuditLogger(),
		validation: NewValidationHelper(),
	}
}

// CheckoutSession is what the client needs to complete payment: the
// hosted checkout URL plus a QR code encoding it for cross-device flows.
type CheckoutSession struct {
	GatewayTransactionID string `json:"gateway_transaction_id"`
	CheckoutURL          string `json:"checkout_url"`
	QRCodeData           string `json:"qr_code_data,omitempty"`
	Tier                 string `json:"tier"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
}

// StartCheckout opens a checkout with the gateway and records it
// locally so the later confirmation has something to reconcile against.
func (ps *PaymentService) StartCheckout(ctx context.Context, accountID, tier string) (*CheckoutSession, error) {
	price, ok := ps.cfg.TierPrices[tier]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidAmount, tier)
	}

	checkout, err := ps.gateway.CreateCheckout(ctx, accountID, tier, price, ps.cfg.Currency)
	if err != nil {
		return nil, err
	}

	_, err = ps.db.ExecContext(ctx, `
		INSERT INTO pending_payments (id, account_id, amount, currency, gateway_transaction_id, tier, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), accountID, price, ps.cfg.Currency,
		checkout.GatewayTransactionID, tier, models.PaymentStatusPending, time.Now())
	if err != nil {
		return nil, fmt.Errorf("record pending payment: %w", err)
	}

	session := &CheckoutSession{
		GatewayTransactionID: checkout.GatewayTransactionID,
		CheckoutURL:          checkout.CheckoutURL,
		Tier:                 tier,
		Amount:               price,
		Currency:             ps.cfg.Currency,
	}

	if png, err := qrcode.Encode(checkout.CheckoutURL, qrcode.Medium, 256); err == nil {
		session.QRCodeData = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	} else {
		log.Printf("[PAYMENT] QR generation failed for %s: %v", checkout.GatewayTransactionID, err)
	}

	ps.audit.LogOperation(checkout.GatewayTransactionID, accountID, "CHECKOUT_STARTED",
		fmt.Sprintf("tier=%s amount=%d", tier, price))
	return session, nil
}

// lockPendingPayment loads the local checkout record by its gateway id,
// locked for the duration of the reconciliation transaction. Concurrent
// confirmations of the same checkout serialize here.
func (ps *PaymentService) lockPendingPayment(tx *sql.Tx, gatewayTransactionID string) (*models.PendingPayment, error) {
	var p models.PendingPayment
	err := tx.QueryRow(`
		SELECT id, account_id, amount, currency, gateway_transaction_id, tier, status, created_at, completed_at
		FROM pending_payments
		WHERE gateway_transaction_id = $1
		FOR UPDATE`, gatewayTransactionID).Scan(
		&p.ID, &p.AccountID, &p.Amount, &p.Currency, &p.GatewayTransactionID,
		&p.Tier, &p.Status, &p.CreatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ConfirmCheckout applies a successful gateway confirmation. Unknown
// gateway ids are logged and ignored; an already-completed checkout is a
// no-op. The recorded amounts are the gateway's observed amounts, not
// the quoted price.
func (ps *PaymentService) ConfirmCheckout(ctx context.Context, gatewayTransactionID string, paidAmount int64, currency string) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payment, err := ps.lockPendingPayment(tx, gatewayTransactionID)
	if err == sql.ErrNoRows {
		log.Printf("[PAYMENT] Ignoring confirmation for unknown checkout %s", gatewayTransactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status == models.PaymentStatusCompleted {
		log.Printf("[PAYMENT] Checkout %s already reconciled, skipping", gatewayTransactionID)
		return nil
	}

	if paidAmount != payment.Amount {
		log.Printf("[PAYMENT] Checkout %s amount mismatch: quoted %d, paid %d", gatewayTransactionID, payment.Amount, paidAmount)
	}

	if _, err := tx.Exec(`
		UPDATE pending_payments
		SET status = $1, amount = $2, currency = $3, completed_at = NOW()
		WHERE id = $4`,
		models.PaymentStatusCompleted, paidAmount, currency, payment.ID); err != nil {
		return err
	}

	start := time.Now()
	end := start.AddDate(0, 0, ps.cfg.SubscriptionDays)
	if _, err := tx.Exec(`
		INSERT INTO subscriptions (user_id, tier, is_active, start_date, end_date)
		VALUES ($1, $2, TRUE, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET tier = EXCLUDED.tier, is_active = TRUE,
		    start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date`,
		payment.AccountID, payment.Tier, start, end); err != nil {
		return err
	}

	// Subscription money settles at the gateway, so the user's wallet
	// balance is untouched: the whole payment is recorded as fee.
	subTxID := uuid.New().String()
	err = ps.ledger.RecordTransactionTx(tx, &models.WalletTransaction{
		TransactionID: subTxID,
		AccountID:     payment.AccountID,
		Type:          models.TxTypeSubscription,
		GrossAmount:   paidAmount,
		Fee:           paidAmount,
		NetAmount:     0,
		Status:        models.TxStatusCompleted,
		Metadata: models.Metadata{
			"gateway_transaction_id": gatewayTransactionID,
			"tier":                   payment.Tier,
		},
	})
	if err != nil {
		return err
	}
	if err := ps.ledger.RecordEarningTx(tx, subTxID, paidAmount, "subscription"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if err := ps.tiers.SetTier(context.Background(), payment.AccountID, payment.Tier); err != nil {
		log.Printf("[PAYMENT] Failed to set premium tier for %s after checkout %s: %v", payment.AccountID, gatewayTransactionID, err)
	}

	ps.audit.LogTransfer(subTxID, gatewayTransactionID, payment.AccountID, paidAmount, "COMPLETED")
	go ps.notifier.Notify(context.Background(), payment.AccountID, "Subscription active",
		fmt.Sprintf("Your %s subscription is active until %s", payment.Tier, end.Format("2006-01-02")),
		map[string]any{"tier": payment.Tier, "endDate": end})

	return nil
}

// FailCheckout records a terminal gateway failure. Like confirmation it
// ignores unknown ids and never un-completes a finished checkout.
func (ps *PaymentService) FailCheckout(ctx context.Context, gatewayTransactionID string) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payment, err := ps.lockPendingPayment(tx, gatewayTransactionID)
	if err == sql.ErrNoRows {
		log.Printf("[PAYMENT] Ignoring failure for unknown checkout %s", gatewayTransactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil
	}

	if _, err := tx.Exec(`
		UPDATE pending_payments SET status = $1, completed_at = NOW() WHERE id = $2`,
		models.PaymentStatusFailed, payment.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	ps.audit.LogOperation(gatewayTransactionID, payment.AccountID, "CHECKOUT_FAILED", "gateway reported failure")
	return nil
}

// VerifyPendingCheckout polls the gateway for a checkout the webhook may
// have missed. Only the checkout's owner may poll it; a foreign or
// unknown id reads as not found. Gateway unavailability leaves the
// local state untouched.
func (ps *PaymentService) VerifyPendingCheckout(ctx context.Context, accountID, gatewayTransactionID string) (string, error) {
	var owner string
	err := ps.db.QueryRowContext(ctx, `
		SELECT account_id FROM pending_payments WHERE gateway_transaction_id = $1`,
		gatewayTransactionID).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", ErrCheckoutNotFound
	}
	if err != nil {
		return "", err
	}
	if owner != accountID {
		return "", ErrCheckoutNotFound
	}

	checkout, err := ps.gateway.GetCheckoutStatus(ctx, gatewayTransactionID)
	if err != nil {
		return "", err
	}

	switch checkout.Status {
	case gateway.StatusSucceeded:
		if err := ps.ConfirmCheckout(ctx, gatewayTransactionID, checkout.Amount, checkout.Currency); err != nil {
			return "", err
		}
	case gateway.StatusFailed:
		if err := ps.FailCheckout(ctx, gatewayTransactionID); err != nil {
			return "", err
		}
	}
	return checkout.Status, nil
}

// ExpireSubscriptions deactivates every lapsed subscription and clears
// the premium flag on the affected profiles. The subscription row is
// authoritative; a failed tier-clear only leaves the denormalized flag
// stale and is logged for follow-up.
func (ps *PaymentService) ExpireSubscriptions(ctx context.Context) (int, error) {
	rows, err := ps.db.QueryContext(ctx, `
		UPDATE subscriptions SET is_active = FALSE
		WHERE is_active = TRUE AND end_date < NOW()
		RETURNING user_id`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	expired := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return len(expired), err
		}
		expired = append(expired, userID)
	}
	if err := rows.Err(); err != nil {
		return len(expired), err
	}

	for _, userID := range expired {
		if err := ps.tiers.ClearTier(ctx, userID); err != nil {
			log.Printf("[PAYMENT] Failed to clear premium tier for %s: %v", userID, err)
			continue
		}
		go ps.notifier.Notify(context.Background(), userID, "Subscription expired",
			"Your premium subscription has expired", nil)
	}
	return len(expired), nil
}

// GetSubscription returns the user's current subscription row, if any.
func (ps *PaymentService) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var s models.Subscription
	err := ps.db.QueryRowContext(ctx, `
		SELECT id, user_id, tier, is_active, start_date, end_date
		FROM subscriptions WHERE user_id = $1`, userID).Scan(
		&s.ID, &s.UserID, &s.Tier, &s.IsActive, &s.StartDate, &s.EndDate)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type checkoutRequest struct {
	Tier string `json:"tier" validate:"required,oneof=silver gold"`
}

// CreateCheckout opens a subscription checkout for the caller.
// @Summary Start subscription checkout
// @Description Create a gateway checkout session for a premium tier
// @Tags subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body checkoutRequest true "Checkout details"
// @Success 201 {object} CheckoutSession
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/subscriptions/checkout [post]
func (ps *PaymentService) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req checkoutRequest
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := ps.validation.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	session, err := ps.StartCheckout(r.Context(), userID, req.Tier)
	if err != nil {
		log.Printf("[PAYMENT] Checkout creation failed for %s: %v", userID, err)
		SendErrorResponse(w, err.Error(), statusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// VerifyCheckout polls the gateway for a checkout's outcome.
// @Summary Verify checkout
// @Description Poll the gateway and reconcile the checkout if settled
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Param gatewayTransactionId path string true "Gateway transaction ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/subscriptions/checkout/{gatewayTransactionId}/verify [post]
func (ps *PaymentService) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	gatewayTransactionID := chi.URLParam(r, "gatewayTransactionId")

	status, err := ps.VerifyPendingCheckout(r.Context(), userID, gatewayTransactionID)
	if err != nil {
		log.Printf("[PAYMENT] Verification failed for %s: %v", gatewayTransactionID, err)
		SendErrorResponse(w, err.Error(), statusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"gatewayTransactionId": gatewayTransactionID,
		"status":               status,
	})
}

// GetMySubscription returns the caller's subscription state.
// @Summary Get subscription
// @Description Get the caller's current premium subscription
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Subscription
// @Failure 404 {object} ErrorResponse
// @Router /wallet/subscriptions/me [get]
func (ps *PaymentService) GetMySubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sub, err := ps.GetSubscription(r.Context(), userID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "No subscription found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[PAYMENT] Subscription lookup failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to load subscription", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
