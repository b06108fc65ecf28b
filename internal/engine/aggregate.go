package engine

import "sort"

// AggregateByDiscount sums the outstanding amount per discount tier.
// Tiers without bids have no entry. The ledger is not modified.
func AggregateByDiscount(l *Ledger) map[uint8]uint64 {
	totals := make(map[uint8]uint64)
	for _, e := range l.heap {
		totals[e.bid.Discount] += e.bid.Amount
	}
	return totals
}

// EmptiedTiers returns, in ascending order, the tiers that had a positive
// total in before and a zero or missing total in after.
func EmptiedTiers(before, after map[uint8]uint64) []uint8 {
	emptied := make([]uint8, 0)
	for discount, total := range before {
		if total == 0 {
			continue
		}
		if after[discount] == 0 {
			emptied = append(emptied, discount)
		}
	}
	sort.Slice(emptied, func(i, j int) bool { return emptied[i] < emptied[j] })
	return emptied
}

// TierEmpties counts how many rounds emptied each discount tier.
type TierEmpties map[uint8]uint64

func (t TierEmpties) Record(emptied []uint8) {
	for _, d := range emptied {
		t[d]++
	}
}

// Copy returns a snapshot safe to hand to another goroutine.
func (t TierEmpties) Copy() map[uint8]uint64 {
	out := make(map[uint8]uint64, len(t))
	for d, n := range t {
		out[d] = n
	}
	return out
}
