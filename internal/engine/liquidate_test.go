package engine

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func newTestLiquidation(amount uint64) *Liquidation {
	return &Liquidation{
		ID:                "liq-1",
		AccountLiquidated: "alice",
		Amount:            amount,
		Status:            LiquidationCreated,
	}
}

func TestLiquidate_ZeroAmount(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l, newTestBid("alice", 100, 10, 1))
	before := l.Bids()

	liq := newTestLiquidation(0)
	fills := Liquidate(l, liq)

	check.Equal(t, LiquidationFulfilled, liq.Status)
	check.Equal(t, uint64(0), liq.Amount)
	check.Equal(t, 0, len(fills))
	check.Equal(t, before, l.Bids())
}

func TestLiquidate_EmptyLedger(t *testing.T) {
	l := NewLedger()
	liq := newTestLiquidation(1000)

	fills := Liquidate(l, liq)

	check.Equal(t, LiquidationUntouched, liq.Status)
	check.Equal(t, uint64(1000), liq.Amount)
	check.Equal(t, 0, len(fills))
}

func TestLiquidate_SingleBidExactAmount(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l, newTestBid("bob", 1000, 10, 1))
	liq := newTestLiquidation(1000)

	fills := Liquidate(l, liq)

	check.Equal(t, 0, l.Len())
	check.Equal(t, LiquidationFulfilled, liq.Status)
	check.Equal(t, uint64(0), liq.Amount)

	assert.Equal(t, 1, len(fills))
	check.True(t, fills[0].Full)
	check.Equal(t, uint64(1000), fills[0].Amount)
	check.Equal(t, uint64(0), fills[0].Residual)
}

func TestLiquidate_PartialBidFill(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l, newTestBid("bob", 1500, 10, 1))
	liq := newTestLiquidation(1000)

	fills := Liquidate(l, liq)

	assert.Equal(t, 1, l.Len())
	remaining := l.Bids()[0]
	check.Equal(t, uint64(500), remaining.Amount)
	check.Equal(t, uint64(1500), remaining.OriginalAmount)
	check.Equal(t, BidPartiallyFilled, remaining.Status)
	check.Equal(t, uint64(1), remaining.Sequence)
	check.Equal(t, uint8(10), remaining.Discount)

	check.Equal(t, LiquidationFulfilled, liq.Status)
	check.Equal(t, uint64(0), liq.Amount)

	assert.Equal(t, 1, len(fills))
	check.False(t, fills[0].Full)
	check.Equal(t, uint64(1000), fills[0].Amount)
	check.Equal(t, uint64(500), fills[0].Residual)
}

func TestLiquidate_MultipleBidsWithRemainder(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l,
		newTestBid("bob", 500, 15, 1),
		newTestBid("charlie", 300, 10, 2),
	)
	liq := newTestLiquidation(1000)

	fills := Liquidate(l, liq)

	check.Equal(t, 0, l.Len())
	check.Equal(t, LiquidationPartiallyFilled, liq.Status)
	check.Equal(t, uint64(200), liq.Amount)

	// cheaper discount drawn first
	assert.Equal(t, 2, len(fills))
	check.Equal(t, "charlie", fills[0].Bidder)
	check.Equal(t, "bob", fills[1].Bidder)
	check.Equal(t, uint64(800), Recovered(fills))
}

func TestLiquidate_MultipleBidsExactAmount(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l,
		newTestBid("bob", 600, 15, 1),
		newTestBid("charlie", 400, 10, 2),
	)
	liq := newTestLiquidation(1000)

	Liquidate(l, liq)

	check.Equal(t, 0, l.Len())
	check.Equal(t, LiquidationFulfilled, liq.Status)
	check.Equal(t, uint64(0), liq.Amount)
}

func TestLiquidate_StopsAtFirstPartialFill(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l,
		newTestBid("a", 300, 2, 1),
		newTestBid("b", 300, 4, 2),
		newTestBid("c", 300, 6, 3),
	)
	liq := newTestLiquidation(450)

	fills := Liquidate(l, liq)

	assert.Equal(t, 2, len(fills))
	check.True(t, fills[0].Full)
	check.False(t, fills[1].Full)
	check.Equal(t, uint64(150), fills[1].Amount)

	bids := l.Bids()
	assert.Equal(t, 2, len(bids))
	check.Equal(t, uint64(2), bids[0].Sequence)
	check.Equal(t, uint64(150), bids[0].Amount)
	check.Equal(t, uint64(3), bids[1].Sequence)
	check.Equal(t, BidActive, bids[1].Status)
}

func TestLiquidate_ResidualKeepsPriority(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l,
		newTestBid("a", 1000, 5, 1),
		newTestBid("b", 1000, 5, 2),
	)

	Liquidate(l, newTestLiquidation(400))
	// b is newer at the same discount, so a's residual is still first
	fills := Liquidate(l, newTestLiquidation(700))

	assert.Equal(t, 2, len(fills))
	check.Equal(t, uint64(1), fills[0].Sequence)
	check.Equal(t, uint64(600), fills[0].Amount)
	check.Equal(t, uint64(2), fills[1].Sequence)
	check.Equal(t, uint64(100), fills[1].Amount)
}

func TestLiquidate_PartiallyFilledCanContinue(t *testing.T) {
	l := NewLedger()
	mustInsert(t, l, newTestBid("bob", 300, 10, 1))
	liq := newTestLiquidation(500)

	Liquidate(l, liq)
	check.Equal(t, LiquidationPartiallyFilled, liq.Status)
	check.Equal(t, uint64(200), liq.Amount)

	mustInsert(t, l, newTestBid("carol", 250, 12, 2))
	Liquidate(l, liq)

	check.Equal(t, LiquidationFulfilled, liq.Status)
	check.Equal(t, uint64(0), liq.Amount)
	assert.Equal(t, 1, l.Len())
	check.Equal(t, uint64(50), l.Bids()[0].Amount)
}

func TestFillHaircut(t *testing.T) {
	f := Fill{Amount: 1000, Discount: 15}
	check.Equal(t, "150", f.Haircut().String())

	f = Fill{Amount: 333, Discount: 10}
	check.Equal(t, "33.3", f.Haircut().String())
}

func TestLiquidationReset(t *testing.T) {
	liq := newTestLiquidation(0)
	liq.Status = LiquidationFulfilled

	liq.Reset("bob", 5000)

	check.Equal(t, "bob", liq.AccountLiquidated)
	check.Equal(t, uint64(5000), liq.Amount)
	check.Equal(t, LiquidationCreated, liq.Status)
}
