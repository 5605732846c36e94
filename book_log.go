package exchange

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BookLog represents an event in the order book.
// SequenceID is a globally increasing ID for every event, used for ordering,
// deduplication, and rebuild synchronization in downstream systems.
// Use LogType to determine if the event affects order book state:
// - Open, Match, Cancel, Amend: affect order book state
// - Reject: does not affect order book state
type BookLog struct {
	SequenceID   uint64          `json:"seq_id"`
	TradeID      uint64          `json:"trade_id,omitempty"` // Sequential trade ID, only set for Match events
	Type         LogType         `json:"type"`
	Pair         string          `json:"pair"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	OldPrice     decimal.Decimal `json:"old_price,omitempty"` // Only set for Amend events
	OrderID      uint64          `json:"order_id"`
	Owner        string          `json:"owner"`
	MakerOrderID uint64          `json:"maker_order_id,omitempty"`
	MakerOwner   string          `json:"maker_owner,omitempty"`
	RejectReason RejectReason    `json:"reject_reason,omitempty"` // Only set for Reject events
	CreatedAt    time.Time       `json:"created_at"`
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	// Reset structure to zero values.
	// For decimal.Decimal, the zero value (nil internal pointer) represents 0, which is valid.
	*log = BookLog{}
	bookLogPool.Put(log)
}

func newOpenLog(pair string, order *Order) *BookLog {
	log := acquireBookLog()
	log.Type = LogTypeOpen
	log.Pair = pair
	log.Side = order.Side
	log.Price = order.Price
	log.Amount = order.Amount
	log.OrderID = order.ID
	log.Owner = order.Owner
	log.CreatedAt = time.Now().UTC()
	return log
}

func newMatchLog(pair string, taker *Order, maker *Order, fill decimal.Decimal) *BookLog {
	log := acquireBookLog()
	log.Type = LogTypeMatch
	log.Pair = pair
	log.Side = taker.Side
	log.Price = maker.Price
	log.Amount = fill
	log.OrderID = taker.ID
	log.Owner = taker.Owner
	log.MakerOrderID = maker.ID
	log.MakerOwner = maker.Owner
	log.CreatedAt = time.Now().UTC()
	return log
}

func newCancelLog(pair string, order *Order) *BookLog {
	log := acquireBookLog()
	log.Type = LogTypeCancel
	log.Pair = pair
	log.Side = order.Side
	log.Price = order.Price
	log.Amount = order.Amount
	log.OrderID = order.ID
	log.Owner = order.Owner
	log.CreatedAt = time.Now().UTC()
	return log
}

func newAmendLog(pair string, order *Order, oldPrice decimal.Decimal) *BookLog {
	log := acquireBookLog()
	log.Type = LogTypeAmend
	log.Pair = pair
	log.Side = order.Side
	log.Price = order.Price
	log.Amount = order.Amount
	log.OldPrice = oldPrice
	log.OrderID = order.ID
	log.Owner = order.Owner
	log.CreatedAt = time.Now().UTC()
	return log
}

func newRejectLog(pair string, owner string, reason RejectReason) *BookLog {
	log := acquireBookLog()
	log.Type = LogTypeReject
	log.Pair = pair
	log.Owner = owner
	log.RejectReason = reason
	log.CreatedAt = time.Now().UTC()
	return log
}
