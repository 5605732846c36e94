package exchange

import (
	"github.com/contractland/exchange-core/protocol"
	"github.com/shopspring/decimal"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type LogType = protocol.LogType

const (
	LogTypeOpen   LogType = protocol.LogTypeOpen
	LogTypeMatch  LogType = protocol.LogTypeMatch
	LogTypeCancel LogType = protocol.LogTypeCancel
	LogTypeAmend  LogType = protocol.LogTypeAmend
	LogTypeReject LogType = protocol.LogTypeReject
)

type RejectReason = protocol.RejectReason

// Order represents a resting order in the book.
// IDs are engine-assigned, strictly increasing and never reused; ID 0 is the
// sentinel returned by lookups that miss.
type Order struct {
	ID             uint64          `json:"id"`
	Owner          string          `json:"owner"`
	Side           Side            `json:"side"`
	BaseAsset      string          `json:"base_asset"`
	TradeAsset     string          `json:"trade_asset"`
	Price          decimal.Decimal `json:"price"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Amount         decimal.Decimal `json:"amount"` // Remaining amount
	Timestamp      int64           `json:"timestamp"`
}

// IsSell reports whether the order is on the sell (ask) side.
func (o *Order) IsSell() bool {
	return o.Side == Sell
}

// SubmitResult is the outcome of a submit call.
// OrderID is zero when the order was fully filled and nothing rests.
type SubmitResult struct {
	OrderID   uint64
	Filled    decimal.Decimal
	Remaining decimal.Decimal
}

// DepthItem is a single aggregated price level of the live book.
type DepthItem struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"count"`
}

// Depth is a point-in-time view of the aggregated book.
type Depth struct {
	UpdateID uint64       `json:"update_id"`
	Asks     []*DepthItem `json:"asks"`
	Bids     []*DepthItem `json:"bids"`
}

// BookStats contains size statistics about the two book sides.
type BookStats struct {
	AskDepthCount int64
	AskOrderCount int64
	BidDepthCount int64
	BidOrderCount int64
}
