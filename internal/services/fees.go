package services

import (
	"fmt"
	"math"

	"github.com/heartlink/backend/internal/config"
)

// Fee-bearing operation kinds.
type FeeOperation string

const (
	OpGift          FeeOperation = "gift"
	OpDirectMessage FeeOperation = "direct_message"
	OpWithdrawal    FeeOperation = "withdrawal"
)

// FeePolicy converts a gross amount into a platform fee and a net
// amount. It is the only place fees are computed, so fee + net always
// sums back to gross across the whole ledger.
type FeePolicy struct {
	giftRate       float64
	withdrawalRate float64
}

func NewFeePolicy(cfg *config.WalletConfig) *FeePolicy {
	return &FeePolicy{
		giftRate:       cfg.GiftFeeRate,
		withdrawalRate: cfg.WithdrawalFeeRate,
	}
}

// Compute returns (fee, net) for a gross amount in minor units.
// Rounding is half-up, applied once to the fee; net is gross minus fee.
func (p *FeePolicy) Compute(op FeeOperation, gross int64) (int64, int64, error) {
	if gross <= 0 {
		return 0, 0, ErrInvalidAmount
	}

	var rate float64
	switch op {
	case OpGift, OpDirectMessage:
		rate = p.giftRate
	case OpWithdrawal:
		rate = p.withdrawalRate
	default:
		return 0, 0, fmt.Errorf("unknown fee operation %q", op)
	}

	fee := int64(math.Floor(float64(gross)*rate + 0.5))
	return fee, gross - fee, nil
}
