package exchange

import (
	"errors"
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// ErrSequenceGap is returned by Replay when a log arrives whose sequence id
// is not the successor of the last applied one.
var ErrSequenceGap = errors.New("aggregated book: sequence gap detected")

// AggregatedBook maintains a simplified view of the order book, tracking only
// price levels and their aggregated amounts (depth). It is designed for
// downstream services that rebuild book state from the BookLog event stream
// received via message queue.
type AggregatedBook struct {
	mu    sync.RWMutex
	seqID uint64 // Last applied SequenceID, for gap detection and deduplication
	ask   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
	bid   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
}

// NewAggregatedBook creates a new AggregatedBook instance with empty ask and bid sides.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
			return a.LessThan(b)
		}),
		bid: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
			return a.GreaterThan(b)
		}),
	}
}

// SequenceID returns the last applied sequence ID.
// Used for synchronization and gap detection during rebuild.
func (ab *AggregatedBook) SequenceID() uint64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.seqID
}

// Replay applies a BookLog event to update the aggregated book state.
// Logs at or below the current sequence id are duplicates and are skipped;
// a log further ahead than the direct successor reports ErrSequenceGap so
// the caller can resynchronize from a snapshot. Reject events do not affect
// book state but still advance the sequence id.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if log.SequenceID <= ab.seqID {
		return nil
	}
	if ab.seqID != 0 && log.SequenceID != ab.seqID+1 {
		return ErrSequenceGap
	}

	for _, change := range CalculateDepthChange(log) {
		ab.apply(change)
	}

	ab.seqID = log.SequenceID
	return nil
}

// Rebuild resets the book from a depth snapshot and its update id. This
// should be called before replaying events from the message queue.
func (ab *AggregatedBook) Rebuild(depth *Depth) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	ab.ask.Clear()
	ab.bid.Clear()
	for _, item := range depth.Asks {
		ab.ask.Set(item.Price, item.Amount)
	}
	for _, item := range depth.Bids {
		ab.bid.Set(item.Price, item.Amount)
	}
	ab.seqID = depth.UpdateID
}

// Depth returns the aggregated amount at a specific price level for the
// given side. Returns zero if the price level does not exist.
func (ab *AggregatedBook) Depth(side Side, price decimal.Decimal) decimal.Decimal {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	amount, ok := ab.tree(side).Get(price)
	if !ok {
		return decimal.Zero
	}
	return amount
}

// Best returns the best price level of the given side, or false when the
// side is empty.
func (ab *AggregatedBook) Best(side Side) (decimal.Decimal, decimal.Decimal, bool) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	it := ab.tree(side).Iterator()
	if !it.Valid() {
		return decimal.Zero, decimal.Zero, false
	}
	return it.Key(), it.Value(), true
}

// Levels returns up to limit price levels of the given side, best first.
func (ab *AggregatedBook) Levels(side Side, limit int) []*DepthItem {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	result := make([]*DepthItem, 0, limit)
	for it := ab.tree(side).Iterator(); it.Valid() && len(result) < limit; it.Next() {
		result = append(result, &DepthItem{Price: it.Key(), Amount: it.Value()})
	}
	return result
}

func (ab *AggregatedBook) tree(side Side) *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	if side == Buy {
		return ab.bid
	}
	return ab.ask
}

func (ab *AggregatedBook) apply(change DepthChange) {
	tree := ab.tree(change.Side)

	amount, _ := tree.Get(change.Price)
	amount = amount.Add(change.AmountDiff)

	if amount.LessThanOrEqual(decimal.Zero) {
		tree.Del(change.Price)
		return
	}
	tree.Set(change.Price, amount)
}
