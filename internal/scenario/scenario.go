package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hakimelghazi/liquidation-core/internal/engine"
)

var ErrInvalidStep = errors.New("invalid step")

// Scenario is a scripted session: bids are placed and liquidations run
// in file order against a single ledger.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one of Bid, Cancel or Liquidate.
type Step struct {
	Bid       *BidStep       `yaml:"bid,omitempty"`
	Cancel    *uint64        `yaml:"cancel,omitempty"`
	Liquidate *LiquidateStep `yaml:"liquidate,omitempty"`
}

type BidStep struct {
	Bidder   string `yaml:"bidder"`
	Amount   uint64 `yaml:"amount"`
	Discount uint8  `yaml:"discount"`
}

type LiquidateStep struct {
	Account string `yaml:"account"`
	Amount  uint64 `yaml:"amount"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read scenario: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("cannot parse scenario: %w", err)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

func (s Step) validate() error {
	set := 0
	if s.Bid != nil {
		set++
		if strings.TrimSpace(s.Bid.Bidder) == "" {
			return fmt.Errorf("%w: bidder is required", ErrInvalidStep)
		}
	}
	if s.Cancel != nil {
		set++
	}
	if s.Liquidate != nil {
		set++
		if strings.TrimSpace(s.Liquidate.Account) == "" {
			return fmt.Errorf("%w: account is required", ErrInvalidStep)
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: want exactly one of bid, cancel, liquidate", ErrInvalidStep)
	}
	return nil
}

// Result is what a scenario run produced.
type Result struct {
	Rounds  []engine.Round
	Empties map[uint8]uint64
	Ledger  []engine.Bid // bids left after the last step
}

// Run executes the steps in order. Sequences are assigned from 1 in
// placement order. Bid validation errors abort the run.
func Run(s *Scenario) (*Result, error) {
	ledger := engine.NewLedger()
	empties := engine.TierEmpties{}
	res := &Result{Rounds: make([]engine.Round, 0)}

	var nextSeq uint64 = 1
	for i, step := range s.Steps {
		switch {
		case step.Bid != nil:
			bid := engine.NewBid(strings.TrimSpace(step.Bid.Bidder), step.Bid.Amount, step.Bid.Discount, nextSeq)
			if err := ledger.Insert(bid); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			nextSeq++

		case step.Cancel != nil:
			if _, ok := ledger.Cancel(*step.Cancel); !ok {
				return nil, fmt.Errorf("step %d: %w: bid %d", i+1, engine.ErrBidNotFound, *step.Cancel)
			}

		case step.Liquidate != nil:
			liq := engine.Liquidation{ID: uuid.NewString()}
			liq.Reset(strings.TrimSpace(step.Liquidate.Account), step.Liquidate.Amount)
			round := engine.RunRound(uuid.NewString(), ledger, &liq)
			empties.Record(round.EmptiedTiers)
			res.Rounds = append(res.Rounds, round)
		}
	}

	res.Empties = empties.Copy()
	res.Ledger = ledger.Bids()
	return res, nil
}

// Report writes a plain-text summary of res to w. It stops writing after
// the first error and returns it.
func Report(w io.Writer, name string, res *Result) error {
	p := &printer{w: w}
	if name != "" {
		p.printf("scenario %s\n", name)
	}
	for i, r := range res.Rounds {
		p.printf("round %d: account=%s requested=%d recovered=%d left=%d status=%s\n",
			i+1, r.Liquidation.AccountLiquidated, r.RequestedAmount, r.Recovered,
			r.Liquidation.Amount, r.Liquidation.Status)
		for _, f := range r.Fills {
			p.printf("  fill seq=%d bidder=%s discount=%d amount=%d full=%t haircut=%s\n",
				f.Sequence, f.Bidder, f.Discount, f.Amount, f.Full, f.Haircut().String())
		}
		if len(r.EmptiedTiers) > 0 {
			p.printf("  emptied tiers %v\n", tiers(r.EmptiedTiers))
		}
	}
	p.printf("ledger: %d bids\n", len(res.Ledger))
	for _, b := range res.Ledger {
		p.printf("  seq=%d bidder=%s discount=%d amount=%d filled=%s%% status=%s\n",
			b.Sequence, b.Bidder, b.Discount, b.Amount, b.PercentFilled().StringFixed(2), b.Status)
	}
	p.printf("empties: %v\n", res.Empties)
	return p.err
}

// printer latches the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// tiers widens the slice so %v prints numbers.
func tiers(in []uint8) []int {
	out := make([]int, len(in))
	for i, d := range in {
		out[i] = int(d)
	}
	return out
}
