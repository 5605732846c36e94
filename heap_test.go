package exchange

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heapOrder(id uint64, price int64) Order {
	return Order{
		ID:             id,
		Owner:          "owner",
		Price:          decimal.NewFromInt(price),
		OriginalAmount: decimal.NewFromInt(1),
		Amount:         decimal.NewFromInt(1),
	}
}

func TestAskHeapOrdering(t *testing.T) {
	h := NewAskHeap()

	h.insert(heapOrder(1, 30))
	h.insert(heapOrder(2, 10))
	h.insert(heapOrder(3, 20))

	assert.Equal(t, 3, h.size())
	assert.Equal(t, uint64(2), h.peekRoot().ID)

	ord := h.extractRoot()
	assert.Equal(t, uint64(2), ord.ID)
	assert.Equal(t, "10", ord.Price.String())

	ord = h.extractRoot()
	assert.Equal(t, uint64(3), ord.ID)
	assert.Equal(t, "20", ord.Price.String())

	ord = h.extractRoot()
	assert.Equal(t, uint64(1), ord.ID)
	assert.Equal(t, "30", ord.Price.String())

	assert.Equal(t, 0, h.size())
}

func TestBidHeapOrdering(t *testing.T) {
	h := NewBidHeap()

	h.insert(heapOrder(1, 30))
	h.insert(heapOrder(2, 10))
	h.insert(heapOrder(3, 20))

	ord := h.extractRoot()
	assert.Equal(t, uint64(1), ord.ID)
	assert.Equal(t, "30", ord.Price.String())

	ord = h.extractRoot()
	assert.Equal(t, uint64(3), ord.ID)

	ord = h.extractRoot()
	assert.Equal(t, uint64(2), ord.ID)
}

func TestHeapEqualPricesRankByID(t *testing.T) {
	// Same price on both sides must pop in ascending id order, so the
	// ranking is deterministic for any insertion order.
	h := NewAskHeap()
	h.insert(heapOrder(5, 10))
	h.insert(heapOrder(2, 10))
	h.insert(heapOrder(9, 10))
	h.insert(heapOrder(1, 10))

	assert.Equal(t, uint64(1), h.extractRoot().ID)
	assert.Equal(t, uint64(2), h.extractRoot().ID)
	assert.Equal(t, uint64(5), h.extractRoot().ID)
	assert.Equal(t, uint64(9), h.extractRoot().ID)

	b := NewBidHeap()
	b.insert(heapOrder(5, 10))
	b.insert(heapOrder(2, 10))
	b.insert(heapOrder(9, 10))
	b.insert(heapOrder(1, 10))

	assert.Equal(t, uint64(1), b.extractRoot().ID)
	assert.Equal(t, uint64(2), b.extractRoot().ID)
	assert.Equal(t, uint64(5), b.extractRoot().ID)
	assert.Equal(t, uint64(9), b.extractRoot().ID)
}

func TestHeapSentinels(t *testing.T) {
	h := NewAskHeap()

	assert.Equal(t, uint64(0), h.peekRoot().ID)
	assert.Equal(t, uint64(0), h.extractRoot().ID)
	assert.Equal(t, uint64(0), h.peekByID(42).ID)

	// Mutations on unknown ids are no-ops
	h.removeByID(42)
	h.updatePrice(42, decimal.NewFromInt(5))
	h.updateAmount(42, decimal.NewFromInt(5))
	assert.Equal(t, 0, h.size())
}

func TestHeapRemoveByID(t *testing.T) {
	t.Run("remove root", func(t *testing.T) {
		h := NewAskHeap()
		h.insert(heapOrder(1, 10))
		h.insert(heapOrder(2, 20))
		h.insert(heapOrder(3, 30))

		h.removeByID(1)
		assert.Equal(t, 2, h.size())
		assert.Equal(t, uint64(2), h.peekRoot().ID)
		assert.Equal(t, uint64(0), h.peekByID(1).ID)
	})

	t.Run("remove middle", func(t *testing.T) {
		h := NewAskHeap()
		h.insert(heapOrder(1, 10))
		h.insert(heapOrder(2, 20))
		h.insert(heapOrder(3, 30))
		h.insert(heapOrder(4, 40))

		h.removeByID(2)
		assert.Equal(t, uint64(1), h.extractRoot().ID)
		assert.Equal(t, uint64(3), h.extractRoot().ID)
		assert.Equal(t, uint64(4), h.extractRoot().ID)
	})

	t.Run("remove last slot", func(t *testing.T) {
		h := NewAskHeap()
		h.insert(heapOrder(1, 10))
		h.insert(heapOrder(2, 20))

		h.removeByID(2)
		assert.Equal(t, 1, h.size())
		assert.Equal(t, uint64(1), h.peekRoot().ID)
	})

	t.Run("remove requiring sift up", func(t *testing.T) {
		// Arrange a heap where the last slot relocated into the freed slot
		// outranks its new parent, so removal has to sift up rather than down.
		h := NewAskHeap()
		h.insert(heapOrder(1, 10))
		h.insert(heapOrder(2, 100))
		h.insert(heapOrder(3, 12))
		h.insert(heapOrder(4, 200))
		h.insert(heapOrder(5, 300))
		h.insert(heapOrder(6, 11))

		h.removeByID(4)

		assert.Equal(t, uint64(1), h.extractRoot().ID)
		assert.Equal(t, uint64(6), h.extractRoot().ID)
		assert.Equal(t, uint64(3), h.extractRoot().ID)
		assert.Equal(t, uint64(2), h.extractRoot().ID)
		assert.Equal(t, uint64(5), h.extractRoot().ID)
	})
}

func TestHeapUpdatePrice(t *testing.T) {
	h := NewAskHeap()
	h.insert(heapOrder(1, 10))
	h.insert(heapOrder(2, 20))
	h.insert(heapOrder(3, 30))

	// Re-pricing the root below the others keeps it at the root
	h.updatePrice(1, decimal.NewFromInt(5))
	assert.Equal(t, uint64(1), h.peekRoot().ID)
	assert.Equal(t, "5", h.peekRoot().Price.String())

	// Re-pricing it beyond the tail moves it to the back
	h.updatePrice(1, decimal.NewFromInt(40))
	assert.Equal(t, uint64(2), h.peekRoot().ID)

	assert.Equal(t, uint64(2), h.extractRoot().ID)
	assert.Equal(t, uint64(3), h.extractRoot().ID)
	assert.Equal(t, uint64(1), h.extractRoot().ID)
}

func TestHeapUpdateAmountKeepsPosition(t *testing.T) {
	h := NewAskHeap()
	h.insert(heapOrder(1, 10))
	h.insert(heapOrder(2, 10))

	h.updateAmount(1, decimal.NewFromInt(77))

	ord := h.peekRoot()
	assert.Equal(t, uint64(1), ord.ID)
	assert.Equal(t, "77", ord.Amount.String())

	// The sibling at the same price still ranks behind it
	assert.Equal(t, uint64(1), h.extractRoot().ID)
	assert.Equal(t, uint64(2), h.extractRoot().ID)
}

func TestHeapIndexConsistency(t *testing.T) {
	h := NewBidHeap()
	rnd := rand.New(rand.NewSource(7))

	live := make(map[uint64]bool)
	for id := uint64(1); id <= 200; id++ {
		h.insert(heapOrder(id, int64(rnd.Intn(50)+1)))
		live[id] = true
	}

	for id := uint64(1); id <= 200; id += 3 {
		h.removeByID(id)
		delete(live, id)
	}

	require.Equal(t, len(live), h.size())
	for id := range live {
		assert.Equal(t, id, h.peekByID(id).ID)
	}

	// Extraction order must be non-increasing in price for bids
	prev := h.extractRoot()
	for h.size() > 0 {
		cur := h.extractRoot()
		assert.True(t, prev.Price.GreaterThanOrEqual(cur.Price),
			"bid heap produced %s after %s", cur.Price, prev.Price)
		if prev.Price.Equal(cur.Price) {
			assert.Less(t, prev.ID, cur.ID)
		}
		prev = cur
	}
}
