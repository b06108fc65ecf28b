package engine

import "github.com/shopspring/decimal"

// Fill records how much of one bid a liquidation consumed.
type Fill struct {
	Sequence uint64 `json:"sequence"`
	Bidder   string `json:"bidder"`
	Discount uint8  `json:"discount"`
	Amount   uint64 `json:"amount"`
	// Full is true when the bid left the ledger, false when a residual was reinserted.
	Full bool `json:"full"`
	// Residual is what stays on the ledger for a partial fill.
	Residual uint64 `json:"residual"`
}

// Haircut is the value the bidder keeps as discount on this fill.
func (f Fill) Haircut() decimal.Decimal {
	return decimalFromUint64(f.Amount).
		Mul(decimal.NewFromInt(int64(f.Discount))).
		Div(decimal.NewFromInt(100))
}

// Liquidate drains the ledger against liq, cheapest discount first, and
// updates both in place. The returned fills list every bid drawn, in order.
//
// A bid that covers the remaining amount exactly is consumed in full. A bid
// larger than what remains is taken out, reduced and put back with its
// original sequence and discount, so it keeps its priority.
func Liquidate(l *Ledger, liq *Liquidation) []Fill {
	fills := make([]Fill, 0)

	if liq.Amount == 0 {
		liq.Status = LiquidationFulfilled
		return fills
	}
	if l.Len() == 0 {
		liq.Status = LiquidationUntouched
		return fills
	}

	remaining := liq.Amount
	for remaining > 0 {
		bid, ok := l.TakeMinimum()
		if !ok {
			// ledger exhausted
			break
		}

		if bid.Amount <= remaining {
			remaining -= bid.Amount
			fills = append(fills, Fill{
				Sequence: bid.Sequence,
				Bidder:   bid.Bidder,
				Discount: bid.Discount,
				Amount:   bid.Amount,
				Full:     true,
			})
			continue
		}

		// partial fill: bid is already detached, reinsert a reduced copy
		residual := bid
		residual.Amount = bid.Amount - remaining
		residual.Status = BidPartiallyFilled
		l.reinsert(residual)

		fills = append(fills, Fill{
			Sequence: bid.Sequence,
			Bidder:   bid.Bidder,
			Discount: bid.Discount,
			Amount:   remaining,
			Residual: residual.Amount,
		})
		remaining = 0
	}

	liq.Amount = remaining
	if remaining > 0 {
		liq.Status = LiquidationPartiallyFilled
	} else {
		liq.Status = LiquidationFulfilled
	}
	return fills
}

// Recovered sums the amount recovered by fills.
func Recovered(fills []Fill) uint64 {
	var total uint64
	for _, f := range fills {
		total += f.Amount
	}
	return total
}
