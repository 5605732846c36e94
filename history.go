package exchange

import (
	"sort"

	"github.com/shopspring/decimal"
)

// OrderStatus is the terminal state recorded when an order leaves the book.
type OrderStatus string

const (
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderRecord is the terminal snapshot of an order appended to the order
// history when it is fully filled or cancelled. Amount holds the remaining
// amount at that moment (zero for a full fill).
type OrderRecord struct {
	OrderID        uint64          `json:"order_id"`
	Owner          string          `json:"owner"`
	Side           Side            `json:"side"`
	Price          decimal.Decimal `json:"price"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Amount         decimal.Decimal `json:"amount"`
	Status         OrderStatus     `json:"status"`
	Timestamp      int64           `json:"timestamp"`
}

// TradeRecord is one executed fill. OrderID and Side are the incoming
// (taker) order's; Price is the maker's price the fill executed at. Keying
// entries by the taker is what lets one order sweeping a price level fold
// into a single entry.
type TradeRecord struct {
	OrderID   uint64          `json:"order_id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
}

// OrderHistory is an append-only log of terminal order snapshots, ordered by
// non-decreasing timestamp. Entries are immutable once appended.
type OrderHistory struct {
	records []OrderRecord
}

// NewOrderHistory creates an empty order history.
func NewOrderHistory() *OrderHistory {
	return &OrderHistory{records: make([]OrderRecord, 0, 64)}
}

func (h *OrderHistory) append(rec OrderRecord) {
	h.records = append(h.records, rec)
}

// dropLast removes the most recent record. Used when unwinding a failed call.
func (h *OrderHistory) dropLast() {
	if n := len(h.records); n > 0 {
		h.records = h.records[:n-1]
	}
}

func (h *OrderHistory) size() int {
	return len(h.records)
}

// Query returns up to limit records with timestamp in [start, end),
// most recent first. start >= end yields an empty result; start == 0 leaves
// the lower bound unconstrained. The log is long-lived, so the range bounds
// are located by binary search over the monotone timestamps, not by scanning.
func (h *OrderHistory) Query(start, end int64, limit int) []OrderRecord {
	if limit <= 0 {
		return nil
	}
	lo, hi := timestampRange(len(h.records), func(i int) int64 { return h.records[i].Timestamp }, start, end)

	result := make([]OrderRecord, 0, min(hi-lo, limit))
	for i := hi - 1; i >= lo && len(result) < limit; i-- {
		result = append(result, h.records[i])
	}
	return result
}

// TradeHistory is an append-only log of fills, ordered by non-decreasing
// timestamp. Consecutive fills against the same maker order at the same price
// are consolidated into the last entry so a single incoming order sweeping one
// price level produces one entry instead of many.
type TradeHistory struct {
	records []TradeRecord
}

// NewTradeHistory creates an empty trade history.
func NewTradeHistory() *TradeHistory {
	return &TradeHistory{records: make([]TradeRecord, 0, 64)}
}

// append records a fill. When the most recent entry has the same order id
// and price, that entry's amount is increased in place and its original
// timestamp kept; this is the single exception to entry immutability.
// Returns true when the fill was consolidated into the previous entry.
func (h *TradeHistory) append(rec TradeRecord) bool {
	if n := len(h.records); n > 0 {
		last := &h.records[n-1]
		if last.OrderID == rec.OrderID && last.Price.Equal(rec.Price) {
			last.Amount = last.Amount.Add(rec.Amount)
			return true
		}
	}
	h.records = append(h.records, rec)
	return false
}

// undoAppend reverses the most recent append. Used when unwinding a failed
// call: a consolidated append restores the previous amount, a plain append is
// dropped.
func (h *TradeHistory) undoAppend(consolidated bool, prevAmount decimal.Decimal) {
	n := len(h.records)
	if n == 0 {
		return
	}
	if consolidated {
		h.records[n-1].Amount = prevAmount
	} else {
		h.records = h.records[:n-1]
	}
}

// lastAmount returns the amount of the most recent entry, or zero when empty.
func (h *TradeHistory) lastAmount() decimal.Decimal {
	if n := len(h.records); n > 0 {
		return h.records[n-1].Amount
	}
	return decimal.Zero
}

func (h *TradeHistory) size() int {
	return len(h.records)
}

// Query returns up to limit records with timestamp in [start, end),
// most recent first. Same contract as OrderHistory.Query.
func (h *TradeHistory) Query(start, end int64, limit int) []TradeRecord {
	if limit <= 0 {
		return nil
	}
	lo, hi := timestampRange(len(h.records), func(i int) int64 { return h.records[i].Timestamp }, start, end)

	result := make([]TradeRecord, 0, min(hi-lo, limit))
	for i := hi - 1; i >= lo && len(result) < limit; i-- {
		result = append(result, h.records[i])
	}
	return result
}

// timestampRange locates [lo, hi) index bounds of entries whose timestamp
// falls in [start, end) over a non-decreasing timestamp sequence.
func timestampRange(n int, ts func(int) int64, start, end int64) (int, int) {
	if start >= end {
		return 0, 0
	}
	lo := 0
	if start > 0 {
		lo = sort.Search(n, func(i int) bool { return ts(i) >= start })
	}
	hi := sort.Search(n, func(i int) bool { return ts(i) >= end })
	return lo, hi
}
