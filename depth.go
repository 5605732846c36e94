package exchange

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

type priceLevel struct {
	price  decimal.Decimal
	amount decimal.Decimal
	count  int64
}

// depthLevels aggregates one book side into price levels for depth queries.
// A skiplist keeps the levels sorted best-price-first while a price->element
// map gives O(1) access for the incremental updates the engine applies on
// every insert, fill, cancel and re-price.
type depthLevels struct {
	side    Side
	list    *skiplist.SkipList
	byPrice map[string]*skiplist.Element
}

// newDepthLevels creates the aggregation for one side. Bids sort by price in
// descending order (highest first), asks ascending (lowest first).
func newDepthLevels(side Side) *depthLevels {
	compare := func(lhs, rhs any) int {
		d1, _ := lhs.(decimal.Decimal)
		d2, _ := rhs.(decimal.Decimal)
		return d1.Cmp(d2)
	}
	if side == Buy {
		compare = func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d2.Cmp(d1)
		}
	}

	return &depthLevels{
		side:    side,
		list:    skiplist.New(skiplist.GreaterThanFunc(compare)),
		byPrice: make(map[string]*skiplist.Element),
	}
}

// add applies a delta to the level at price, creating the level when it
// appears and dropping it when its order count reaches zero. amountDiff and
// orderDiff may be negative.
func (d *depthLevels) add(price decimal.Decimal, amountDiff decimal.Decimal, orderDiff int64) {
	key := price.String()

	el, ok := d.byPrice[key]
	if !ok {
		if orderDiff <= 0 {
			return
		}
		unit := &priceLevel{price: price, amount: amountDiff, count: orderDiff}
		d.byPrice[key] = d.list.Set(price, unit)
		return
	}

	unit, _ := el.Value.(*priceLevel)
	unit.amount = unit.amount.Add(amountDiff)
	unit.count += orderDiff

	if unit.count <= 0 {
		d.list.RemoveElement(el)
		delete(d.byPrice, key)
	}
}

// top returns the best limit price levels, best first.
func (d *depthLevels) top(limit int) []*DepthItem {
	result := make([]*DepthItem, 0, limit)

	el := d.list.Front()
	for i := 0; i < limit && el != nil; i++ {
		unit, _ := el.Value.(*priceLevel)
		result = append(result, &DepthItem{
			Price:  unit.price,
			Amount: unit.amount,
			Count:  unit.count,
		})
		el = el.Next()
	}
	return result
}

// depthCount returns the number of price levels.
func (d *depthLevels) depthCount() int64 {
	return int64(d.list.Len())
}
