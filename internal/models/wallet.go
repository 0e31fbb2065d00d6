package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Transaction types recorded in the wallet ledger.
const (
	TxTypeGiftSent         = "gift_sent"
	TxTypeGiftReceived     = "gift_received"
	TxTypeWithdrawal       = "withdrawal"
	TxTypeDirectMessageFee = "direct_message_fee"
	TxTypeSubscription     = "subscription_payment"
	TxTypePlatformEarning  = "platform_earning"
)

// Transaction statuses. Completed rows are immutable; corrections are
// new offsetting rows.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Account holds one user's wallet balance in minor currency units.
// Balance is mutated only through the ledger's conditional update and
// can never be observed negative.
type Account struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WalletTransaction is one row of the append-only transaction log.
// NetAmount is the signed balance delta for AccountID, and every row
// satisfies Fee + NetAmount == GrossAmount: debit legs carry a negative
// gross with zero fee, the platform fee sits on the fee-bearing credit leg.
type WalletTransaction struct {
	ID             int       `json:"id" db:"id"`
	TransactionID  string    `json:"transaction_id" db:"transaction_id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Type           string    `json:"type" db:"type"`
	GrossAmount    int64     `json:"gross_amount" db:"gross_amount"`
	Fee            int64     `json:"fee" db:"fee"`
	NetAmount      int64     `json:"net_amount" db:"net_amount"`
	CounterpartyID *string   `json:"counterparty_account_id,omitempty" db:"counterparty_account_id"`
	Status         string    `json:"status" db:"status"`
	Metadata       Metadata  `json:"metadata" db:"metadata"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// PlatformEarning is an append-only audit row of platform fee revenue.
// Reversals are offsetting rows with a negative amount.
type PlatformEarning struct {
	ID            int       `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	Amount        int64     `json:"amount" db:"amount"`
	SourceType    string    `json:"source_type" db:"source_type"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
