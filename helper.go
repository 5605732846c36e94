package exchange

import "github.com/shopspring/decimal"

// DepthChange represents a change in the order book depth.
type DepthChange struct {
	Side       Side
	Price      decimal.Decimal
	AmountDiff decimal.Decimal
	OrderDiff  int64
}

// CalculateDepthChange translates a BookLog into the depth deltas it implies.
// Note: for LogTypeMatch the affected side is the maker's side (opposite of
// the log's side), since a match removes liquidity from the maker. Amend
// events move the order's amount between two price levels, so they yield two
// changes; rejects never entered the book and yield none.
func CalculateDepthChange(log *BookLog) []DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return []DepthChange{{
			Side:       log.Side,
			Price:      log.Price,
			AmountDiff: log.Amount,
			OrderDiff:  1,
		}}
	case LogTypeCancel:
		return []DepthChange{{
			Side:       log.Side,
			Price:      log.Price,
			AmountDiff: log.Amount.Neg(),
			OrderDiff:  -1,
		}}
	case LogTypeMatch:
		makerSide := Buy
		if log.Side == Buy {
			makerSide = Sell
		}
		return []DepthChange{{
			Side:       makerSide,
			Price:      log.Price,
			AmountDiff: log.Amount.Neg(),
		}}
	case LogTypeAmend:
		return []DepthChange{
			{
				Side:       log.Side,
				Price:      log.OldPrice,
				AmountDiff: log.Amount.Neg(),
				OrderDiff:  -1,
			},
			{
				Side:       log.Side,
				Price:      log.Price,
				AmountDiff: log.Amount,
				OrderDiff:  1,
			},
		}
	case LogTypeReject:
		return nil
	}

	return nil
}
