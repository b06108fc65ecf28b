package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/hakimelghazi/liquidation-core/internal/engine"
	"github.com/hakimelghazi/liquidation-core/internal/logger"
	"github.com/hakimelghazi/liquidation-core/internal/store"
)

type fakeFills struct {
	rows []store.FillRecord
}

func (f *fakeFills) ListFills(_ context.Context, roundID string) ([]store.FillRecord, error) {
	out := make([]store.FillRecord, 0, len(f.rows))
	for _, r := range f.rows {
		if r.RoundID == roundID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, fills FillLister) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.Discard()
	eng := engine.NewEngine(8, engine.Liquidation{AccountLiquidated: "1", Amount: 5000}, nil, log)
	go eng.Run(ctx)

	return NewRouter(eng, fills, log, time.Second)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, rec.Body.String())
	}
	return v
}

func TestPlaceBid(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/bids", map[string]any{"bidder": "bob", "amount": 1500, "discount": 10})
	assert.Equal(t, http.StatusCreated, rec.Code)
	check.Equal(t, "/bids/1", rec.Header().Get("Location"))
	check.NotEqual(t, "", rec.Header().Get("X-Request-ID"))

	got := decode[bidResponse](t, rec)
	check.Equal(t, uint64(1), got.Sequence)
	check.Equal(t, uint64(1500), got.Amount)
	check.Equal(t, engine.BidActive, got.Status)
	check.Equal(t, "0.00", got.PercentFilled)
}

func TestPlaceBidValidation(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name string
		body any
	}{
		{"negative amount", map[string]any{"bidder": "bob", "amount": -5, "discount": 10}},
		{"zero amount", map[string]any{"bidder": "bob", "amount": 0, "discount": 10}},
		{"zero discount", map[string]any{"bidder": "bob", "amount": 5, "discount": 0}},
		{"discount above 100", map[string]any{"bidder": "bob", "amount": 5, "discount": 101}},
		{"missing bidder", map[string]any{"amount": 5, "discount": 10}},
		{"not json", "{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/bids", tc.body)
			check.Equal(t, http.StatusBadRequest, rec.Code)
			check.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRunLiquidationFlow(t *testing.T) {
	h := newTestServer(t, nil)

	do(t, h, http.MethodPost, "/bids", map[string]any{"bidder": "bob", "amount": 500, "discount": 15})
	do(t, h, http.MethodPost, "/bids", map[string]any{"bidder": "charlie", "amount": 300, "discount": 10})

	rec := do(t, h, http.MethodPut, "/liquidation", map[string]any{"account": "alice", "amount": 1000})
	assert.Equal(t, http.StatusOK, rec.Code)
	liq := decode[engine.Liquidation](t, rec)
	check.Equal(t, engine.LiquidationCreated, liq.Status)

	rec = do(t, h, http.MethodPost, "/liquidation/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	round := decode[roundResponse](t, rec)

	check.Equal(t, engine.LiquidationPartiallyFilled, round.Liquidation.Status)
	check.Equal(t, uint64(200), round.Liquidation.Amount)
	check.Equal(t, []int{10, 15}, round.EmptiedTiers)
	assert.Equal(t, 2, len(round.Fills))
	check.Equal(t, "charlie", round.Fills[0].Bidder)
	check.Equal(t, "30", round.Fills[0].Haircut)
	check.Equal(t, "75", round.Fills[1].Haircut)

	rec = do(t, h, http.MethodGet, "/discounts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	d := decode[discountsResponse](t, rec)
	check.Equal(t, 0, len(d.Totals))
	check.Equal(t, map[uint8]uint64{10: 1, 15: 1}, d.Empties)
}

func TestListBidsAfterPartialFill(t *testing.T) {
	h := newTestServer(t, nil)

	do(t, h, http.MethodPost, "/bids", map[string]any{"bidder": "bob", "amount": 1500, "discount": 10})
	do(t, h, http.MethodPut, "/liquidation", map[string]any{"account": "alice", "amount": 1000})
	do(t, h, http.MethodPost, "/liquidation/run", nil)

	rec := do(t, h, http.MethodGet, "/bids", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	bids := decode[[]bidResponse](t, rec)

	assert.Equal(t, 1, len(bids))
	check.Equal(t, uint64(500), bids[0].Amount)
	check.Equal(t, engine.BidPartiallyFilled, bids[0].Status)
	check.Equal(t, "66.67", bids[0].PercentFilled)
}

func TestCancelBid(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodPost, "/bids", map[string]any{"bidder": "bob", "amount": 10, "discount": 3})

	check.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/bids/1", nil).Code)
	check.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/bids/1", nil).Code)
	check.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/bids/abc", nil).Code)
}

func TestResetLiquidationValidation(t *testing.T) {
	h := newTestServer(t, nil)

	check.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPut, "/liquidation", map[string]any{"account": "alice", "amount": -1}).Code)
	check.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPut, "/liquidation", map[string]any{"account": " ", "amount": 10}).Code)
}

func TestCancelledLiquidationConflicts(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodDelete, "/liquidation", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, engine.LiquidationCancelled, decode[engine.Liquidation](t, rec).Status)

	check.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/liquidation/run", nil).Code)
}

func TestGetLiquidationDefaults(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/liquidation", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	liq := decode[engine.Liquidation](t, rec)
	check.Equal(t, "1", liq.AccountLiquidated)
	check.Equal(t, uint64(5000), liq.Amount)
}

func TestListFills(t *testing.T) {
	roundID := uuid.NewString()
	fills := &fakeFills{rows: []store.FillRecord{
		{RoundID: roundID, Position: 0, BidSequence: 2, Bidder: "charlie", Discount: 10, Amount: 300, Full: true, Haircut: decimal.NewFromInt(30)},
	}}
	h := newTestServer(t, fills)

	rec := do(t, h, http.MethodGet, "/rounds/"+roundID+"/fills", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]store.FillRecord](t, rec)
	assert.Equal(t, 1, len(rows))
	check.Equal(t, "charlie", rows[0].Bidder)

	check.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/rounds/nope/fills", nil).Code)
}

func TestListFillsWithoutJournal(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/rounds/"+uuid.NewString()+"/fills", nil)
	check.Equal(t, http.StatusNotImplemented, rec.Code)
}
