package exchange

import "github.com/shopspring/decimal"

// directoryNode is an entry in the open-order directory. The prev/next links
// are order ids rather than pointers: the directory is an arena of nodes
// addressed by the order id itself, so unlinking can never leave a dangling
// reference. Id 0 marks a list end.
type directoryNode struct {
	order Order
	prev  uint64
	next  uint64
}

// OpenOrderDirectory keeps the resting orders of one book side in insertion
// order, independent of price ranking. It serves book enumeration ("the
// oldest N resting orders"), never matching priority.
type OpenOrderDirectory struct {
	nodes map[uint64]*directoryNode
	head  uint64
	tail  uint64
	count int64
}

// NewOpenOrderDirectory creates an empty directory.
func NewOpenOrderDirectory() *OpenOrderDirectory {
	return &OpenOrderDirectory{
		nodes: make(map[uint64]*directoryNode),
	}
}

// append adds an order at the tail. O(1).
func (d *OpenOrderDirectory) append(order Order) {
	node := &directoryNode{order: order, prev: d.tail}
	d.nodes[order.ID] = node

	if d.tail != 0 {
		d.nodes[d.tail].next = order.ID
	} else {
		d.head = order.ID
	}
	d.tail = order.ID
	d.count++
}

// get returns the stored order and whether the id is live.
func (d *OpenOrderDirectory) get(id uint64) (Order, bool) {
	node, ok := d.nodes[id]
	if !ok {
		return Order{}, false
	}
	return node.order, true
}

// updateAmount overwrites the remaining amount of a live order.
// No-op if the id is absent.
func (d *OpenOrderDirectory) updateAmount(id uint64, newAmount decimal.Decimal) {
	if node, ok := d.nodes[id]; ok {
		node.order.Amount = newAmount
	}
}

// updatePrice mirrors a heap re-pricing into the directory's stored order
// for display consistency. No-op if the id is absent.
func (d *OpenOrderDirectory) updatePrice(id uint64, newPrice decimal.Decimal) {
	if node, ok := d.nodes[id]; ok {
		node.order.Price = newPrice
	}
}

// remove unlinks an order. O(1), idempotent: removing an absent or already
// removed id does nothing. Returns the removed node so a caller can relink it
// when unwinding a failed call.
func (d *OpenOrderDirectory) remove(id uint64) (directoryNode, bool) {
	node, ok := d.nodes[id]
	if !ok {
		return directoryNode{}, false
	}

	if node.prev != 0 {
		d.nodes[node.prev].next = node.next
	} else {
		d.head = node.next
	}
	if node.next != 0 {
		d.nodes[node.next].prev = node.prev
	} else {
		d.tail = node.prev
	}

	delete(d.nodes, id)
	d.count--
	return *node, true
}

// relink restores a previously removed node between its recorded neighbors.
// Only valid while the neighbors are unchanged since the removal, which holds
// when unwinding mutations in reverse order.
func (d *OpenOrderDirectory) relink(node directoryNode) {
	id := node.order.ID
	d.nodes[id] = &node

	if node.prev != 0 {
		d.nodes[node.prev].next = id
	} else {
		d.head = id
	}
	if node.next != 0 {
		d.nodes[node.next].prev = id
	} else {
		d.tail = id
	}
	d.count++
}

// size returns the number of live orders in the directory.
func (d *OpenOrderDirectory) size() int64 {
	return d.count
}

// OpenOrdersView is the result of listing the directory: parallel slices of
// each order field, oldest first. All slices share the same length.
type OpenOrdersView struct {
	IDs             []uint64
	Owners          []string
	Sides           []Side
	Prices          []decimal.Decimal
	OriginalAmounts []decimal.Decimal
	Amounts         []decimal.Decimal
	Timestamps      []int64
}

// list returns up to limit live orders in insertion order, oldest first.
// A limit beyond the directory size returns everything; an empty directory
// returns all-empty slices.
func (d *OpenOrderDirectory) list(limit int) *OpenOrdersView {
	n := int(d.count)
	if limit >= 0 && limit < n {
		n = limit
	}

	view := &OpenOrdersView{
		IDs:             make([]uint64, 0, n),
		Owners:          make([]string, 0, n),
		Sides:           make([]Side, 0, n),
		Prices:          make([]decimal.Decimal, 0, n),
		OriginalAmounts: make([]decimal.Decimal, 0, n),
		Amounts:         make([]decimal.Decimal, 0, n),
		Timestamps:      make([]int64, 0, n),
	}

	id := d.head
	for id != 0 && len(view.IDs) < n {
		node := d.nodes[id]
		view.IDs = append(view.IDs, node.order.ID)
		view.Owners = append(view.Owners, node.order.Owner)
		view.Sides = append(view.Sides, node.order.Side)
		view.Prices = append(view.Prices, node.order.Price)
		view.OriginalAmounts = append(view.OriginalAmounts, node.order.OriginalAmount)
		view.Amounts = append(view.Amounts, node.order.Amount)
		view.Timestamps = append(view.Timestamps, node.order.Timestamp)
		id = node.next
	}
	return view
}

// orders returns all live orders in insertion order. Used for snapshots.
func (d *OpenOrderDirectory) orders() []Order {
	result := make([]Order, 0, d.count)
	id := d.head
	for id != 0 {
		node := d.nodes[id]
		result = append(result, node.order)
		id = node.next
	}
	return result
}
