package engine

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidActive          BidStatus = "ACTIVE"
	BidPartiallyFilled BidStatus = "PARTIALLY_FILLED"
	BidFulfilled       BidStatus = "FULFILLED"
	BidCancelled       BidStatus = "CANCELLED"
)

const (
	MinDiscount uint8 = 1
	MaxDiscount uint8 = 100
)

// Bid is a standing offer to absorb liquidated collateral at a discount.
type Bid struct {
	Bidder         string    `json:"bidder"`
	Amount         uint64    `json:"amount"`   // still outstanding
	Discount       uint8     `json:"discount"` // percent off fair value
	Sequence       uint64    `json:"sequence"` // tie-break, unique per ledger
	PlacedAt       time.Time `json:"placed_at"`
	OriginalAmount uint64    `json:"original_amount"`
	Status         BidStatus `json:"status"`
}

// NewBid returns an active bid whose original amount equals amount.
func NewBid(bidder string, amount uint64, discount uint8, sequence uint64) Bid {
	return Bid{
		Bidder:         bidder,
		Amount:         amount,
		Discount:       discount,
		Sequence:       sequence,
		PlacedAt:       time.Now().UTC(),
		OriginalAmount: amount,
		Status:         BidActive,
	}
}

// Less reports whether b is matched before other.
func (b Bid) Less(other Bid) bool {
	if b.Discount != other.Discount {
		return b.Discount < other.Discount
	}
	return b.Sequence < other.Sequence
}

// PercentFilled is the share of the original amount already consumed, in percent.
func (b Bid) PercentFilled() decimal.Decimal {
	if b.OriginalAmount == 0 {
		return decimal.Zero
	}
	filled := decimalFromUint64(b.OriginalAmount - b.Amount)
	return filled.Mul(decimal.NewFromInt(100)).
		Div(decimalFromUint64(b.OriginalAmount)).
		Round(2)
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

type LiquidationStatus string

const (
	LiquidationCreated         LiquidationStatus = "CREATED"
	LiquidationPartiallyFilled LiquidationStatus = "PARTIALLY_FILLED"
	LiquidationFulfilled       LiquidationStatus = "FULFILLED"
	LiquidationCancelled       LiquidationStatus = "CANCELLED"
	LiquidationUntouched       LiquidationStatus = "UNTOUCHED"
)

// Liquidation is a single recovery order against one account.
type Liquidation struct {
	ID                string            `json:"id"`
	AccountLiquidated string            `json:"account_liquidated"`
	Amount            uint64            `json:"amount"` // left to recover
	Status            LiquidationStatus `json:"status"`
}

// Reset reinitializes the record for a new recovery target.
func (l *Liquidation) Reset(account string, amount uint64) {
	l.AccountLiquidated = account
	l.Amount = amount
	l.Status = LiquidationCreated
}
