package exchange

import (
	"time"

	"github.com/contractland/exchange-core/protocol"
	"github.com/shopspring/decimal"
)

// journal collects inverse operations for an in-flight call so a failure
// after partial mutation can unwind fully. Undos run in reverse order.
type journal struct {
	undos []func()
}

func (j *journal) record(undo func()) {
	j.undos = append(j.undos, undo)
}

func (j *journal) unwind() {
	for i := len(j.undos) - 1; i >= 0; i-- {
		j.undos[i]()
	}
}

// EngineOption configures a MatchingEngine.
type EngineOption func(*MatchingEngine)

// WithPublisher sets the BookLog publisher. Defaults to DiscardPublishLog.
func WithPublisher(p PublishLog) EngineOption {
	return func(e *MatchingEngine) {
		e.publisher = p
	}
}

// WithMetrics attaches prometheus instruments to the engine.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *MatchingEngine) {
		e.metrics = m
	}
}

// MatchingEngine is the matching core for a single asset pair. Incoming
// orders cross against the opposite heap while the price permits; any
// remainder rests in the incoming side's own heap and directory.
//
// Every exported mutation is atomic per call and the engine holds no locks:
// callers invoking it from multiple goroutines must serialize through a
// single dispatch point (OrderBook does this with its command loop).
type MatchingEngine struct {
	pair       string
	baseAsset  string
	tradeAsset string

	funds     FundStore
	publisher PublishLog
	metrics   *Metrics

	asks      *bookHeap
	bids      *bookHeap
	askOrders *OpenOrderDirectory
	bidOrders *OpenOrderDirectory
	askDepth  *depthLevels
	bidDepth  *depthLevels

	orderHistory *OrderHistory
	tradeHistory *TradeHistory

	lastOrderID   uint64
	seqID         uint64
	tradeID       uint64
	lastTimestamp int64
}

// NewMatchingEngine creates the matching core for one pair. The pair trades
// tradeAsset against baseAsset (the quote currency); funds is the escrow
// collaborator debited and credited on every fill.
func NewMatchingEngine(pair, baseAsset, tradeAsset string, funds FundStore, opts ...EngineOption) *MatchingEngine {
	e := &MatchingEngine{
		pair:         pair,
		baseAsset:    baseAsset,
		tradeAsset:   tradeAsset,
		funds:        funds,
		publisher:    NewDiscardPublishLog(),
		asks:         NewAskHeap(),
		bids:         NewBidHeap(),
		askOrders:    NewOpenOrderDirectory(),
		bidOrders:    NewOpenOrderDirectory(),
		askDepth:     newDepthLevels(Sell),
		bidDepth:     newDepthLevels(Buy),
		orderHistory: NewOrderHistory(),
		tradeHistory: NewTradeHistory(),
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// now returns a monotone non-decreasing unix-nano timestamp, so history
// appends never violate the log ordering even if the wall clock steps back.
func (e *MatchingEngine) now() int64 {
	ts := time.Now().UnixNano()
	if ts < e.lastTimestamp {
		ts = e.lastTimestamp
	}
	e.lastTimestamp = ts
	return ts
}

func (e *MatchingEngine) sideStructs(side Side) (*bookHeap, *OpenOrderDirectory, *depthLevels) {
	if side == Buy {
		return e.bids, e.bidOrders, e.bidDepth
	}
	return e.asks, e.askOrders, e.askDepth
}

func opposite(side Side) Side {
	if side == Buy {
		return Sell
	}
	return Buy
}

// crossable reports whether a taker at limit price can trade against the
// given maker price: bid >= ask.
func crossable(takerSide Side, takerPrice, makerPrice decimal.Decimal) bool {
	if takerSide == Buy {
		return takerPrice.GreaterThanOrEqual(makerPrice)
	}
	return takerPrice.LessThanOrEqual(makerPrice)
}

// publish stamps sequence and trade ids onto the logs, hands them to the
// publisher and recycles them. Stamping at publish time keeps the published
// sequence contiguous: logs built for a call that later unwound are released
// without ever consuming an id.
func (e *MatchingEngine) publish(logs ...*BookLog) {
	if len(logs) == 0 {
		return
	}
	for _, log := range logs {
		e.seqID++
		log.SequenceID = e.seqID
		if log.Type == LogTypeMatch {
			e.tradeID++
			log.TradeID = e.tradeID
		}
	}
	e.publisher.Publish(logs...)
	for _, log := range logs {
		releaseBookLog(log)
	}
}

// Submit crosses an incoming order against the opposite book and rests any
// remainder. Fills settle at the resting (maker) order's price. Zero or
// negative price/amount is rejected before any mutation; a failed escrow
// debit unwinds the entire call, leaving books, histories and balances as
// they were.
func (e *MatchingEngine) Submit(owner string, side Side, price, amount decimal.Decimal) (SubmitResult, error) {
	if owner == "" || (side != Buy && side != Sell) ||
		price.LessThanOrEqual(decimal.Zero) || amount.LessThanOrEqual(decimal.Zero) {
		e.metrics.incRejected()
		e.publish(newRejectLog(e.pair, owner, protocol.RejectReasonInvalidParam))
		return SubmitResult{}, ErrInvalidParam
	}

	now := e.now()

	var j journal
	e.lastOrderID++
	j.record(func() { e.lastOrderID-- })

	taker := Order{
		ID:             e.lastOrderID,
		Owner:          owner,
		Side:           side,
		BaseAsset:      e.baseAsset,
		TradeAsset:     e.tradeAsset,
		Price:          price,
		OriginalAmount: amount,
		Amount:         amount,
		Timestamp:      now,
	}

	oppHeap, oppDir, oppDepth := e.sideStructs(opposite(side))
	logs := make([]*BookLog, 0, 8)
	filled := decimal.Zero
	trades := 0

	for taker.Amount.GreaterThan(decimal.Zero) {
		maker := oppHeap.peekRoot()
		if maker.ID == 0 || !crossable(side, price, maker.Price) {
			break
		}

		fill := taker.Amount
		if maker.Amount.LessThan(fill) {
			fill = maker.Amount
		}

		if err := e.settle(owner, side, &maker, fill, &j); err != nil {
			j.unwind()
			for _, log := range logs {
				releaseBookLog(log)
			}
			e.metrics.incRejected()
			e.publish(newRejectLog(e.pair, owner, protocol.RejectReasonInsufficientFunds))
			return SubmitResult{}, err
		}

		prevTradeAmount := e.tradeHistory.lastAmount()
		consolidated := e.tradeHistory.append(TradeRecord{
			OrderID:   taker.ID,
			Side:      taker.Side,
			Price:     maker.Price,
			Amount:    fill,
			Timestamp: now,
		})
		j.record(func() { e.tradeHistory.undoAppend(consolidated, prevTradeAmount) })

		logs = append(logs, newMatchLog(e.pair, &taker, &maker, fill))
		trades++

		taker.Amount = taker.Amount.Sub(fill)
		filled = filled.Add(fill)
		makerRemaining := maker.Amount.Sub(fill)

		if makerRemaining.IsZero() {
			extracted := oppHeap.extractRoot()
			j.record(func() { oppHeap.insert(extracted) })

			if node, ok := oppDir.remove(maker.ID); ok {
				j.record(func() { oppDir.relink(node) })
			}

			oppDepth.add(maker.Price, fill.Neg(), -1)
			j.record(func() { oppDepth.add(maker.Price, fill, 1) })

			e.orderHistory.append(OrderRecord{
				OrderID:        maker.ID,
				Owner:          maker.Owner,
				Side:           maker.Side,
				Price:          maker.Price,
				OriginalAmount: maker.OriginalAmount,
				Amount:         decimal.Zero,
				Status:         OrderStatusFilled,
				Timestamp:      now,
			})
			j.record(func() { e.orderHistory.dropLast() })
		} else {
			// Amount is not a heap key, so this is a plain field update
			// with no resift; the maker keeps its queue position.
			prevMakerAmount := maker.Amount
			makerID := maker.ID
			oppHeap.updateAmount(makerID, makerRemaining)
			oppDir.updateAmount(makerID, makerRemaining)
			j.record(func() {
				oppHeap.updateAmount(makerID, prevMakerAmount)
				oppDir.updateAmount(makerID, prevMakerAmount)
			})

			oppDepth.add(maker.Price, fill.Neg(), 0)
			j.record(func() { oppDepth.add(maker.Price, fill, 0) })
		}
	}

	restingID := uint64(0)
	if taker.Amount.GreaterThan(decimal.Zero) {
		ownHeap, ownDir, ownDepth := e.sideStructs(side)
		ownHeap.insert(taker)
		ownDir.append(taker)
		ownDepth.add(taker.Price, taker.Amount, 1)
		logs = append(logs, newOpenLog(e.pair, &taker))
		restingID = taker.ID
	} else {
		e.orderHistory.append(OrderRecord{
			OrderID:        taker.ID,
			Owner:          taker.Owner,
			Side:           taker.Side,
			Price:          taker.Price,
			OriginalAmount: taker.OriginalAmount,
			Amount:         decimal.Zero,
			Status:         OrderStatusFilled,
			Timestamp:      now,
		})
	}

	e.publish(logs...)
	e.metrics.incSubmitted()
	for i := 0; i < trades; i++ {
		e.metrics.incTrades()
	}
	e.updateRestingGauges()

	return SubmitResult{OrderID: restingID, Filled: filled, Remaining: taker.Amount}, nil
}

// settle moves both legs of a fill through the escrow at the maker's price.
// The quote leg is cost = price * fill in the base asset; the size leg is
// fill in the trade asset. Debits run first so a shortfall aborts before any
// counterpart is credited; every transfer is journaled for unwinding.
func (e *MatchingEngine) settle(takerOwner string, takerSide Side, maker *Order, fill decimal.Decimal, j *journal) error {
	cost := maker.Price.Mul(fill)

	buyer, seller := takerOwner, maker.Owner
	if takerSide == Sell {
		buyer, seller = maker.Owner, takerOwner
	}

	if err := e.funds.Debit(buyer, e.baseAsset, cost); err != nil {
		return err
	}
	j.record(func() { e.funds.Credit(buyer, e.baseAsset, cost) })

	if err := e.funds.Debit(seller, e.tradeAsset, fill); err != nil {
		return err
	}
	j.record(func() { e.funds.Credit(seller, e.tradeAsset, fill) })

	e.funds.Credit(seller, e.baseAsset, cost)
	j.record(func() { _ = e.funds.Debit(seller, e.baseAsset, cost) })

	e.funds.Credit(buyer, e.tradeAsset, fill)
	j.record(func() { _ = e.funds.Debit(buyer, e.tradeAsset, fill) })

	return nil
}

// Cancel removes a resting order from its side's heap and directory and
// appends a terminal history record. Cancelling an id that is not live is a
// no-op, not an error, so re-sent cancellations stay idempotent.
func (e *MatchingEngine) Cancel(side Side, id uint64) {
	heap, dir, depth := e.sideStructs(side)

	order := heap.peekByID(id)
	if order.ID == 0 {
		return
	}

	heap.removeByID(id)
	dir.remove(id)
	depth.add(order.Price, order.Amount.Neg(), -1)

	e.orderHistory.append(OrderRecord{
		OrderID:        order.ID,
		Owner:          order.Owner,
		Side:           order.Side,
		Price:          order.Price,
		OriginalAmount: order.OriginalAmount,
		Amount:         order.Amount,
		Status:         OrderStatusCancelled,
		Timestamp:      e.now(),
	})

	e.publish(newCancelLog(e.pair, &order))
	e.metrics.incCancelled()
	e.updateRestingGauges()
}

// UpdatePrice re-keys a resting order to a new price. The heap resifts in a
// single direction, the directory mirrors the price for display consistency,
// and the depth levels move the order's remaining amount. An unknown id is a
// no-op; an unchanged price does nothing observable.
func (e *MatchingEngine) UpdatePrice(side Side, id uint64, newPrice decimal.Decimal) error {
	if newPrice.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidParam
	}

	heap, dir, depth := e.sideStructs(side)

	order := heap.peekByID(id)
	if order.ID == 0 {
		return nil
	}
	if order.Price.Equal(newPrice) {
		return nil
	}

	heap.updatePrice(id, newPrice)
	dir.updatePrice(id, newPrice)
	depth.add(order.Price, order.Amount.Neg(), -1)
	depth.add(newPrice, order.Amount, 1)

	updated := order
	updated.Price = newPrice
	e.publish(newAmendLog(e.pair, &updated, order.Price))
	return nil
}

// Pair returns the traded pair identifier.
func (e *MatchingEngine) Pair() string {
	return e.pair
}

// BestAsk returns the lowest-priced resting sell order, or the sentinel
// empty order when the ask side is empty.
func (e *MatchingEngine) BestAsk() Order {
	return e.asks.peekRoot()
}

// BestBid returns the highest-priced resting buy order, or the sentinel
// empty order when the bid side is empty.
func (e *MatchingEngine) BestBid() Order {
	return e.bids.peekRoot()
}

// OrderByID returns the resting order with the given id on the given side,
// or the sentinel empty order when it is not live.
func (e *MatchingEngine) OrderByID(side Side, id uint64) Order {
	heap, _, _ := e.sideStructs(side)
	return heap.peekByID(id)
}

// OpenOrders lists up to limit resting orders of one side in insertion
// order, oldest first.
func (e *MatchingEngine) OpenOrders(side Side, limit int) *OpenOrdersView {
	_, dir, _ := e.sideStructs(side)
	return dir.list(limit)
}

// Depth returns the aggregated book up to limit price levels per side.
func (e *MatchingEngine) Depth(limit int) *Depth {
	return &Depth{
		UpdateID: e.seqID,
		Asks:     e.askDepth.top(limit),
		Bids:     e.bidDepth.top(limit),
	}
}

// Stats returns size statistics about both book sides.
func (e *MatchingEngine) Stats() *BookStats {
	return &BookStats{
		AskDepthCount: e.askDepth.depthCount(),
		AskOrderCount: e.askOrders.size(),
		BidDepthCount: e.bidDepth.depthCount(),
		BidOrderCount: e.bidOrders.size(),
	}
}

// QueryOrderHistory returns terminal order records in [start, end), most
// recent first, up to limit.
func (e *MatchingEngine) QueryOrderHistory(start, end int64, limit int) []OrderRecord {
	return e.orderHistory.Query(start, end, limit)
}

// QueryTradeHistory returns trade records in [start, end), most recent
// first, up to limit.
func (e *MatchingEngine) QueryTradeHistory(start, end int64, limit int) []TradeRecord {
	return e.tradeHistory.Query(start, end, limit)
}

func (e *MatchingEngine) updateRestingGauges() {
	e.metrics.setResting(Buy, e.bidOrders.size())
	e.metrics.setResting(Sell, e.askOrders.size())
}
