package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directoryOrder(id uint64, price int64) Order {
	return Order{
		ID:             id,
		Owner:          "owner",
		Side:           Buy,
		Price:          decimal.NewFromInt(price),
		OriginalAmount: decimal.NewFromInt(1),
		Amount:         decimal.NewFromInt(1),
	}
}

func TestDirectoryInsertionOrder(t *testing.T) {
	d := NewOpenOrderDirectory()

	// Insertion order is what the directory preserves, not price order
	d.append(directoryOrder(3, 30))
	d.append(directoryOrder(1, 10))
	d.append(directoryOrder(2, 20))

	assert.Equal(t, int64(3), d.size())

	view := d.list(10)
	require.Equal(t, []uint64{3, 1, 2}, view.IDs)
	assert.Equal(t, "30", view.Prices[0].String())
	assert.Equal(t, "10", view.Prices[1].String())
	assert.Equal(t, "20", view.Prices[2].String())
	assert.Len(t, view.Owners, 3)
	assert.Len(t, view.Amounts, 3)
}

func TestDirectoryListLimit(t *testing.T) {
	d := NewOpenOrderDirectory()
	for id := uint64(1); id <= 5; id++ {
		d.append(directoryOrder(id, int64(id)*10))
	}

	assert.Equal(t, []uint64{1, 2}, d.list(2).IDs)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, d.list(5).IDs)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, d.list(100).IDs)
	assert.Empty(t, d.list(0).IDs)
}

func TestDirectoryRemove(t *testing.T) {
	d := NewOpenOrderDirectory()
	d.append(directoryOrder(1, 10))
	d.append(directoryOrder(2, 20))
	d.append(directoryOrder(3, 30))

	t.Run("remove middle", func(t *testing.T) {
		_, ok := d.remove(2)
		assert.True(t, ok)
		assert.Equal(t, []uint64{1, 3}, d.list(10).IDs)
		assert.Equal(t, int64(2), d.size())
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		_, ok := d.remove(2)
		assert.False(t, ok)
		_, ok = d.remove(999)
		assert.False(t, ok)
		assert.Equal(t, int64(2), d.size())
	})

	t.Run("remove head and tail", func(t *testing.T) {
		_, ok := d.remove(1)
		assert.True(t, ok)
		_, ok = d.remove(3)
		assert.True(t, ok)
		assert.Equal(t, int64(0), d.size())
		assert.Empty(t, d.list(10).IDs)

		// Appending after full drain starts a fresh chain
		d.append(directoryOrder(4, 40))
		assert.Equal(t, []uint64{4}, d.list(10).IDs)
	})
}

func TestDirectoryRelink(t *testing.T) {
	d := NewOpenOrderDirectory()
	d.append(directoryOrder(1, 10))
	d.append(directoryOrder(2, 20))
	d.append(directoryOrder(3, 30))

	node, ok := d.remove(2)
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 3}, d.list(10).IDs)

	d.relink(node)
	assert.Equal(t, []uint64{1, 2, 3}, d.list(10).IDs)
	assert.Equal(t, int64(3), d.size())

	// Relink at the head and at the tail
	head, _ := d.remove(1)
	d.relink(head)
	assert.Equal(t, []uint64{1, 2, 3}, d.list(10).IDs)

	tail, _ := d.remove(3)
	d.relink(tail)
	assert.Equal(t, []uint64{1, 2, 3}, d.list(10).IDs)
}

func TestDirectoryUpdates(t *testing.T) {
	d := NewOpenOrderDirectory()
	d.append(directoryOrder(1, 10))

	d.updateAmount(1, decimal.NewFromInt(7))
	d.updatePrice(1, decimal.NewFromInt(15))

	ord, ok := d.get(1)
	require.True(t, ok)
	assert.Equal(t, "7", ord.Amount.String())
	assert.Equal(t, "15", ord.Price.String())

	// Unknown ids are no-ops
	d.updateAmount(999, decimal.NewFromInt(1))
	d.updatePrice(999, decimal.NewFromInt(1))
	_, ok = d.get(999)
	assert.False(t, ok)
}

func TestDirectoryOrders(t *testing.T) {
	d := NewOpenOrderDirectory()
	d.append(directoryOrder(2, 20))
	d.append(directoryOrder(1, 10))

	orders := d.orders()
	require.Len(t, orders, 2)
	assert.Equal(t, uint64(2), orders[0].ID)
	assert.Equal(t, uint64(1), orders[1].ID)
}
