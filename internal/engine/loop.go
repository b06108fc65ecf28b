package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hakimelghazi/liquidation-core/internal/logger"
)

var (
	ErrLiquidationCancelled = errors.New("liquidation is cancelled")
	ErrEngineStopped        = errors.New("engine stopped")
	ErrBidNotFound          = errors.New("bid not found")
	ErrInvalidBid           = errors.New("invalid bid")
)

// RoundRecorder stores the outcome of a liquidation round.
type RoundRecorder interface {
	RecordRound(ctx context.Context, round Round) error
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Bids        []Bid            `json:"bids"`
	Totals      map[uint8]uint64 `json:"totals"`
	Empties     map[uint8]uint64 `json:"empties"`
	Liquidation Liquidation      `json:"liquidation"`
}

// Engine owns one ledger and one liquidation record. Every operation goes
// through the Run goroutine, so callers on other goroutines never touch
// the ledger directly.
type Engine struct {
	ledger      *Ledger
	liquidation Liquidation
	empties     TierEmpties
	nextSeq     uint64

	cmds chan Command
	done chan struct{}

	recorder RoundRecorder // optional
	log      *logger.Entry
}

func NewEngine(buffer int, initial Liquidation, recorder RoundRecorder, log *logger.Log) *Engine {
	if initial.ID == "" {
		initial.ID = uuid.NewString()
	}
	if initial.Status == "" {
		initial.Status = LiquidationCreated
	}
	return &Engine{
		ledger:      NewLedger(),
		liquidation: initial,
		empties:     make(TierEmpties),
		nextSeq:     1,
		cmds:        make(chan Command, buffer),
		done:        make(chan struct{}),
		recorder:    recorder,
		log:         log.WithComponent("engine"),
	}
}

func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	for {
		select {
		case cmd := <-e.cmds:
			value, err := e.handle(ctx, cmd)
			cmd.Resp <- reply{value: value, err: err}

		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case CmdPlaceBid:
		bid := NewBid(cmd.Bidder, cmd.Amount, cmd.Discount, e.nextSeq)
		if err := e.ledger.Insert(bid); err != nil {
			return nil, err
		}
		e.nextSeq++
		return bid, nil

	case CmdCancelBid:
		bid, ok := e.ledger.Cancel(cmd.Sequence)
		if !ok {
			return nil, fmt.Errorf("cancel bid %d: %w", cmd.Sequence, ErrBidNotFound)
		}
		return bid, nil

	case CmdRunLiquidation:
		return e.runLiquidation(ctx)

	case CmdResetLiquidation:
		e.liquidation.ID = uuid.NewString()
		e.liquidation.Reset(cmd.Account, cmd.Amount)
		e.log.WithFields(logger.Fields{
			"liquidation_id": e.liquidation.ID,
			"account":        cmd.Account,
			"amount":         cmd.Amount,
		}).Info("liquidation reset")
		return e.liquidation, nil

	case CmdCancelLiquidation:
		e.liquidation.Status = LiquidationCancelled
		return e.liquidation, nil

	case CmdSnapshot:
		return Snapshot{
			Bids:        e.ledger.Bids(),
			Totals:      AggregateByDiscount(e.ledger),
			Empties:     e.empties.Copy(),
			Liquidation: e.liquidation,
		}, nil
	}
	return nil, fmt.Errorf("unknown command %d", cmd.Type)
}

func (e *Engine) runLiquidation(ctx context.Context) (Round, error) {
	if e.liquidation.Status == LiquidationCancelled {
		return Round{}, ErrLiquidationCancelled
	}

	// 1) match in memory
	round := RunRound(uuid.NewString(), e.ledger, &e.liquidation)
	e.empties.Record(round.EmptiedTiers)

	e.log.WithFields(logger.Fields{
		"round_id":       round.ID,
		"liquidation_id": round.Liquidation.ID,
		"amount_left":    round.Liquidation.Amount,
		"status":         round.Liquidation.Status,
		"fills":          len(round.Fills),
	}).Info("liquidation run")

	// 2) journal the round; a failed write never undoes the match
	if e.recorder != nil && len(round.Fills) > 0 {
		if err := e.recorder.RecordRound(ctx, round); err != nil {
			e.log.WithError(err).WithFields(logger.Fields{"round_id": round.ID}).
				Error("record round failed")
		} else {
			round.Persisted = true
		}
	}
	return round, nil
}

func (e *Engine) submit(ctx context.Context, cmd Command) (any, error) {
	cmd.Resp = make(chan reply, 1)

	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrEngineStopped
	}

	select {
	case r := <-cmd.Resp:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrEngineStopped
	}
}

// PlaceBid validates and inserts a new bid; the engine assigns its sequence.
func (e *Engine) PlaceBid(ctx context.Context, bidder string, amount uint64, discount uint8) (Bid, error) {
	bidder = strings.TrimSpace(bidder)
	if bidder == "" {
		return Bid{}, fmt.Errorf("%w: bidder is required", ErrInvalidBid)
	}
	v, err := e.submit(ctx, Command{
		Type:     CmdPlaceBid,
		Bidder:   bidder,
		Amount:   amount,
		Discount: discount,
	})
	if err != nil {
		return Bid{}, err
	}
	return v.(Bid), nil
}

func (e *Engine) CancelBid(ctx context.Context, sequence uint64) (Bid, error) {
	v, err := e.submit(ctx, Command{Type: CmdCancelBid, Sequence: sequence})
	if err != nil {
		return Bid{}, err
	}
	return v.(Bid), nil
}

func (e *Engine) RunLiquidation(ctx context.Context) (Round, error) {
	v, err := e.submit(ctx, Command{Type: CmdRunLiquidation})
	if err != nil {
		return Round{}, err
	}
	return v.(Round), nil
}

func (e *Engine) ResetLiquidation(ctx context.Context, account string, amount uint64) (Liquidation, error) {
	v, err := e.submit(ctx, Command{Type: CmdResetLiquidation, Account: account, Amount: amount})
	if err != nil {
		return Liquidation{}, err
	}
	return v.(Liquidation), nil
}

func (e *Engine) CancelLiquidation(ctx context.Context) (Liquidation, error) {
	v, err := e.submit(ctx, Command{Type: CmdCancelLiquidation})
	if err != nil {
		return Liquidation{}, err
	}
	return v.(Liquidation), nil
}

func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err := e.submit(ctx, Command{Type: CmdSnapshot})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}
