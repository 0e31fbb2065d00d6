package models

import "time"

// Withdrawal request states. Only pending requests may transition, and
// they transition exactly once.
const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusPaid     = "paid"
	WithdrawalStatusRejected = "rejected"
)

// WithdrawalRequest reserves funds for an out-of-band payout. The ledger
// only records the reservation; settlement is confirmed externally.
type WithdrawalRequest struct {
	ID            string    `json:"id" db:"id"`
	AccountID     string    `json:"account_id" db:"account_id"`
	GrossAmount   int64     `json:"gross_amount" db:"gross_amount"`
	Fee           int64     `json:"fee" db:"fee"`
	NetAmount     int64     `json:"net_amount" db:"net_amount"`
	Provider      string    `json:"provider" db:"provider"`
	Destination   string    `json:"destination" db:"destination"`
	Status        string    `json:"status" db:"status"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PayoutProvider describes one payout rail as shown to clients.
// Destination patterns live in configuration, not code.
type PayoutProvider struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	LogoData string `json:"logoData,omitempty"`
}
