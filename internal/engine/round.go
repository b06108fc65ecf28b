package engine

import "time"

// Round is the observable outcome of one Liquidate call.
type Round struct {
	ID              string           `json:"id"`
	Liquidation     Liquidation      `json:"liquidation"`
	RequestedAmount uint64           `json:"requested_amount"`
	Recovered       uint64           `json:"recovered"`
	Fills           []Fill           `json:"fills"`
	Before          map[uint8]uint64 `json:"before"`
	After           map[uint8]uint64 `json:"after"`
	EmptiedTiers    []uint8          `json:"emptied_tiers"`
	ExecutedAt      time.Time        `json:"executed_at"`
	Persisted       bool             `json:"persisted"`
}

// RunRound snapshots the discount totals around a Liquidate call and
// reports which tiers it emptied.
func RunRound(id string, l *Ledger, liq *Liquidation) Round {
	requested := liq.Amount
	before := AggregateByDiscount(l)

	fills := Liquidate(l, liq)

	after := AggregateByDiscount(l)
	return Round{
		ID:              id,
		Liquidation:     *liq,
		RequestedAmount: requested,
		Recovered:       Recovered(fills),
		Fills:           fills,
		Before:          before,
		After:           after,
		EmptiedTiers:    EmptiedTiers(before, after),
		ExecutedAt:      time.Now().UTC(),
	}
}
