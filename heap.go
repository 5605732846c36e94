package exchange

import "github.com/shopspring/decimal"

// bookHeap is an array-backed binary heap holding one side of the book,
// ordered by (price, id). Slot 0 is a reserved sentinel (the empty order with
// ID 0) so that live orders occupy slots 1..n and parent/child arithmetic
// stays 1-indexed. An id->slot map is kept as the inverse index, which makes
// removal and re-pricing of an arbitrary order O(log n) instead of a scan.
type bookHeap struct {
	side  Side
	slots []Order
	index map[uint64]int
}

// NewAskHeap creates the heap for sell orders (asks).
// The root is the lowest price; price ties rank by ascending id.
func NewAskHeap() *bookHeap {
	return &bookHeap{
		side:  Sell,
		slots: make([]Order, 1, 64),
		index: make(map[uint64]int),
	}
}

// NewBidHeap creates the heap for buy orders (bids).
// The root is the highest price; price ties rank by ascending id.
func NewBidHeap() *bookHeap {
	return &bookHeap{
		side:  Buy,
		slots: make([]Order, 1, 64),
		index: make(map[uint64]int),
	}
}

// outranks reports whether a takes priority over b on this side.
// The relation is a strict total order over live ids: equal prices always
// fall through to the id comparison, so no two live orders compare equal.
func (h *bookHeap) outranks(a, b *Order) bool {
	switch {
	case a.Price.LessThan(b.Price):
		return h.side == Sell
	case a.Price.GreaterThan(b.Price):
		return h.side == Buy
	default:
		return a.ID < b.ID
	}
}

// size returns the number of live orders in the heap.
func (h *bookHeap) size() int {
	return len(h.slots) - 1
}

// insert adds an order to the heap.
func (h *bookHeap) insert(order Order) {
	h.slots = append(h.slots, order)
	slot := len(h.slots) - 1
	h.index[order.ID] = slot
	h.siftUp(slot)
}

// peekRoot returns the best-priced order without removing it.
// Returns the sentinel empty order if the heap is empty.
func (h *bookHeap) peekRoot() Order {
	if h.size() == 0 {
		return Order{}
	}
	return h.slots[1]
}

// peekByID returns the order with the given id, or the sentinel empty order
// if the id is not live.
func (h *bookHeap) peekByID(id uint64) Order {
	slot, ok := h.index[id]
	if !ok {
		return Order{}
	}
	return h.slots[slot]
}

// extractRoot removes and returns the best-priced order.
// Returns the sentinel empty order and performs no mutation on an empty heap.
func (h *bookHeap) extractRoot() Order {
	if h.size() == 0 {
		return Order{}
	}
	return h.removeAt(1)
}

// removeByID removes the order with the given id. No-op if the id is not live.
func (h *bookHeap) removeByID(id uint64) {
	slot, ok := h.index[id]
	if !ok {
		return
	}
	h.removeAt(slot)
}

// updatePrice re-keys a live order to a new price and restores the heap
// property by sifting in a single direction. An unchanged price is an
// observable no-op: no swap happens. No-op if the id is not live.
func (h *bookHeap) updatePrice(id uint64, newPrice decimal.Decimal) {
	slot, ok := h.index[id]
	if !ok {
		return
	}
	if h.slots[slot].Price.Equal(newPrice) {
		return
	}
	h.slots[slot].Price = newPrice
	h.siftAt(slot)
}

// updateAmount overwrites the remaining amount of a live order in place.
// Amount is not part of the heap key, so no resift happens.
func (h *bookHeap) updateAmount(id uint64, newAmount decimal.Decimal) {
	slot, ok := h.index[id]
	if !ok {
		return
	}
	h.slots[slot].Amount = newAmount
}

// removeAt drops the order at the given slot. If it is not the last slot, the
// last order is moved into the freed slot and sifted in the single direction
// required (up when it now outranks its parent, down otherwise).
func (h *bookHeap) removeAt(slot int) Order {
	removed := h.slots[slot]
	last := len(h.slots) - 1

	delete(h.index, removed.ID)

	if slot != last {
		h.slots[slot] = h.slots[last]
		h.index[h.slots[slot].ID] = slot
	}
	h.slots = h.slots[:last]

	if slot < len(h.slots) {
		h.siftAt(slot)
	}
	return removed
}

// siftAt restores the heap property around a slot whose key changed,
// sifting up or down but never both.
func (h *bookHeap) siftAt(slot int) {
	if slot > 1 && h.outranks(&h.slots[slot], &h.slots[slot/2]) {
		h.siftUp(slot)
	} else {
		h.siftDown(slot)
	}
}

func (h *bookHeap) siftUp(slot int) {
	for slot > 1 && h.outranks(&h.slots[slot], &h.slots[slot/2]) {
		h.swap(slot, slot/2)
		slot /= 2
	}
}

func (h *bookHeap) siftDown(slot int) {
	n := h.size()
	for {
		child := slot * 2
		if child > n {
			return
		}
		if child+1 <= n && h.outranks(&h.slots[child+1], &h.slots[child]) {
			child++
		}
		if !h.outranks(&h.slots[child], &h.slots[slot]) {
			return
		}
		h.swap(slot, child)
		slot = child
	}
}

func (h *bookHeap) swap(i, j int) {
	h.slots[i], h.slots[j] = h.slots[j], h.slots[i]
	h.index[h.slots[i].ID] = i
	h.index[h.slots[j].ID] = j
}
