package models

import "time"

// Pending payment states mirror the wallet transaction states.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// PendingPayment is the local record of a checkout initiated with the
// external gateway. It is keyed by the gateway's transaction id, which is
// the idempotency key for reconciliation.
type PendingPayment struct {
	ID                   string     `json:"id" db:"id"`
	AccountID            string     `json:"account_id" db:"account_id"`
	Amount               int64      `json:"amount" db:"amount"`
	Currency             string     `json:"currency" db:"currency"`
	GatewayTransactionID string     `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	Tier                 string     `json:"tier" db:"tier"`
	Status               string     `json:"status" db:"status"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Subscription is the premium entitlement activated by a confirmed
// checkout. One row per user, upserted on every confirmation.
type Subscription struct {
	ID        int       `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Tier      string    `json:"tier" db:"tier"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
}

// CheckoutEvent is the asynchronous confirmation pushed by the gateway.
// Delivery is at-least-once and possibly out of order.
type CheckoutEvent struct {
	GatewayTransactionID string `json:"gatewayTransactionId" validate:"required"`
	Status               string `json:"status" validate:"required"`
	Amount               int64  `json:"amount" validate:"required,gt=0"`
	Currency             string `json:"currency" validate:"required,len=3"`
}
