package engine

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateSequence = errors.New("duplicate bid sequence")
	ErrInvalidDiscount   = errors.New("discount out of range")
	ErrZeroAmount        = errors.New("bid amount must be positive")
)

// ledgerEntry is a heap slot. index is kept current by bidHeap.Swap so a
// bid can be removed by sequence.
type ledgerEntry struct {
	bid   Bid
	index int
}

// bidHeap orders entries by discount ascending, then sequence ascending.
type bidHeap []*ledgerEntry

func (h bidHeap) Len() int           { return len(h) }
func (h bidHeap) Less(i, j int) bool { return h[i].bid.Less(h[j].bid) }

func (h bidHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *bidHeap) Push(x any) {
	e := x.(*ledgerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *bidHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Ledger holds the outstanding bids in (discount, sequence) order.
// It is not safe for concurrent use; see Engine for a serialized owner.
type Ledger struct {
	heap       bidHeap
	bySequence map[uint64]*ledgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{
		heap:       make(bidHeap, 0),
		bySequence: make(map[uint64]*ledgerEntry),
	}
}

// Insert adds bid to the ledger. The ledger keeps its own copy.
func (l *Ledger) Insert(bid Bid) error {
	if bid.Discount < MinDiscount || bid.Discount > MaxDiscount {
		return fmt.Errorf("insert bid %d: %w: %d", bid.Sequence, ErrInvalidDiscount, bid.Discount)
	}
	if bid.Amount == 0 {
		return fmt.Errorf("insert bid %d: %w", bid.Sequence, ErrZeroAmount)
	}
	if _, exists := l.bySequence[bid.Sequence]; exists {
		return fmt.Errorf("insert bid %d: %w", bid.Sequence, ErrDuplicateSequence)
	}

	l.push(bid)
	return nil
}

// reinsert puts back the residual of a bid just taken by TakeMinimum. The
// residual was valid when first inserted, so only the sequence is checked;
// a clash means the ledger is corrupt.
func (l *Ledger) reinsert(bid Bid) {
	if _, exists := l.bySequence[bid.Sequence]; exists {
		panic(fmt.Sprintf("ledger: reinsert of live sequence %d", bid.Sequence))
	}
	l.push(bid)
}

func (l *Ledger) push(bid Bid) {
	e := &ledgerEntry{bid: bid}
	heap.Push(&l.heap, e)
	l.bySequence[bid.Sequence] = e
}

// TakeMinimum removes and returns the bid matched next: lowest discount,
// then lowest sequence.
func (l *Ledger) TakeMinimum() (Bid, bool) {
	if len(l.heap) == 0 {
		return Bid{}, false
	}
	e := heap.Pop(&l.heap).(*ledgerEntry)
	delete(l.bySequence, e.bid.Sequence)
	return e.bid, true
}

// Cancel removes the bid with the given sequence and returns it marked cancelled.
func (l *Ledger) Cancel(sequence uint64) (Bid, bool) {
	e, ok := l.bySequence[sequence]
	if !ok {
		return Bid{}, false
	}
	heap.Remove(&l.heap, e.index)
	delete(l.bySequence, sequence)

	bid := e.bid
	bid.Status = BidCancelled
	return bid, true
}

func (l *Ledger) Get(sequence uint64) (Bid, bool) {
	e, ok := l.bySequence[sequence]
	if !ok {
		return Bid{}, false
	}
	return e.bid, true
}

func (l *Ledger) Len() int {
	return len(l.heap)
}

// Bids returns a copy of the ledger in matching order.
func (l *Ledger) Bids() []Bid {
	out := make([]Bid, 0, len(l.heap))
	for _, e := range l.heap {
		out = append(out, e.bid)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})
	return out
}
