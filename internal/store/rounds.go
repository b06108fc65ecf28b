package store

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/hakimelghazi/liquidation-core/internal/engine"
)

// DB is the part of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// execer is satisfied by pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// FillRecord is one journaled fill.
type FillRecord struct {
	RoundID     string          `json:"round_id"`
	Position    int             `json:"position"`
	BidSequence uint64          `json:"bid_sequence"`
	Bidder      string          `json:"bidder"`
	Discount    uint8           `json:"discount"`
	Amount      uint64          `json:"amount"`
	Residual    uint64          `json:"residual"`
	Full        bool            `json:"full"`
	Haircut     decimal.Decimal `json:"haircut"`
}

// RoundStore journals liquidation rounds in Postgres. It implements
// engine.RoundRecorder.
type RoundStore struct {
	db DB
}

func NewRoundStore(db DB) *RoundStore {
	return &RoundStore{db: db}
}

const insertRoundSQL = `
INSERT INTO liquidation_rounds
    (id, liquidation_id, account_liquidated, requested_amount, recovered, amount_left, status, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const insertFillSQL = `
INSERT INTO liquidation_fills
    (round_id, position, bid_sequence, bidder, discount, amount, residual, full_fill, haircut)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// RecordRound writes the round and its fills in one transaction.
func (s *RoundStore) RecordRound(ctx context.Context, round engine.Round) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertRound(ctx, tx, round); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit round %s: %w", round.ID, err)
	}
	return nil
}

func insertRound(ctx context.Context, q execer, round engine.Round) error {
	roundID, err := uuidFromString(round.ID)
	if err != nil {
		return fmt.Errorf("round id: %w", err)
	}
	liqID, err := uuidFromString(round.Liquidation.ID)
	if err != nil {
		return fmt.Errorf("liquidation id: %w", err)
	}

	_, err = q.Exec(ctx, insertRoundSQL,
		roundID,
		liqID,
		round.Liquidation.AccountLiquidated,
		numericFromUint64(round.RequestedAmount),
		numericFromUint64(round.Recovered),
		numericFromUint64(round.Liquidation.Amount),
		string(round.Liquidation.Status),
		pgtype.Timestamptz{Time: round.ExecutedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert round %s: %w", round.ID, err)
	}

	for i, f := range round.Fills {
		_, err := q.Exec(ctx, insertFillSQL,
			roundID,
			i,
			int64(f.Sequence),
			f.Bidder,
			int16(f.Discount),
			numericFromUint64(f.Amount),
			numericFromUint64(f.Residual),
			f.Full,
			numericFromDecimal(f.Haircut()),
		)
		if err != nil {
			return fmt.Errorf("insert fill %d of round %s: %w", i, round.ID, err)
		}
	}
	return nil
}

const listFillsSQL = `
SELECT position, bid_sequence, bidder, discount, amount, residual, full_fill, haircut
FROM liquidation_fills
WHERE round_id = $1
ORDER BY position`

// ListFills returns the fills of a round in draw order.
func (s *RoundStore) ListFills(ctx context.Context, roundID string) ([]FillRecord, error) {
	id, err := uuidFromString(roundID)
	if err != nil {
		return nil, fmt.Errorf("round id: %w", err)
	}

	rows, err := s.db.Query(ctx, listFillsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	defer rows.Close()

	out := make([]FillRecord, 0)
	for rows.Next() {
		var (
			rec                       FillRecord
			seq                       int64
			discount                  int16
			amount, residual, haircut pgtype.Numeric
		)
		if err := rows.Scan(&rec.Position, &seq, &rec.Bidder, &discount, &amount, &residual, &rec.Full, &haircut); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		rec.RoundID = roundID
		rec.BidSequence = uint64(seq)
		rec.Discount = uint8(discount)
		rec.Amount = decimalFromNumeric(amount).BigInt().Uint64()
		rec.Residual = decimalFromNumeric(residual).BigInt().Uint64()
		rec.Haircut = decimalFromNumeric(haircut)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	return out, nil
}

func uuidFromString(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func numericFromUint64(v uint64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:   new(big.Int).SetUint64(v),
		Valid: true,
	}
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:   d.Coefficient(),
		Exp:   d.Exponent(),
		Valid: true,
	}
}

func decimalFromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

var _ engine.RoundRecorder = (*RoundStore)(nil)
