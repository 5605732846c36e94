package exchange

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/contractland/exchange-core/protocol"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// bookCommandType enumerates the commands processed by the order book loop.
type bookCommandType int

const (
	cmdSubmit bookCommandType = iota
	cmdCancel
	cmdUpdatePrice
	cmdDepth
	cmdOpenOrders
	cmdOrderHistory
	cmdTradeHistory
	cmdBest
	cmdStats
	cmdSnapshot
	cmdReject
)

type submitRequest struct {
	Owner  string
	Side   Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

type cancelRequest struct {
	Side    Side
	OrderID uint64
}

type updatePriceRequest struct {
	Side     Side
	OrderID  uint64
	NewPrice decimal.Decimal
}

type openOrdersRequest struct {
	Side  Side
	Limit int
}

type historyRequest struct {
	Start int64
	End   int64
	Limit int
}

type submitResponse struct {
	Result SubmitResult
	Err    error
}

type bestResponse struct {
	Ask Order
	Bid Order
}

// bookCommand is the unified carrier for everything entering the loop. A
// single channel keeps command ordering deterministic.
type bookCommand struct {
	seqID   uint64
	cmdType bookCommandType
	payload any
	resp    chan any // Set for synchronous commands
}

// OrderBookOption configures an OrderBook.
type OrderBookOption func(*OrderBook)

// WithCommandBuffer overrides the command channel capacity (default 32768).
func WithCommandBuffer(n int) OrderBookOption {
	return func(book *OrderBook) {
		if n > 0 {
			book.cmdChan = make(chan bookCommand, n)
		}
	}
}

// WithSerializer overrides the payload serializer used by EnqueueCommand.
func WithSerializer(s protocol.Serializer) OrderBookOption {
	return func(book *OrderBook) {
		book.serializer = s
	}
}

// OrderBook serializes access to a MatchingEngine through a single command
// loop. The engine itself holds no locks; the loop goroutine started by
// Start is its single dispatch point, so submissions arriving from many
// goroutines are applied one at a time in arrival order.
type OrderBook struct {
	engine     *MatchingEngine
	serializer protocol.Serializer

	lastCmdSeqID     atomic.Uint64
	isShutdown       atomic.Bool
	cmdChan          chan bookCommand
	done             chan struct{}
	shutdownComplete chan struct{}
}

// NewOrderBook wraps a matching engine in a command loop. Call Start on a
// dedicated goroutine before submitting.
func NewOrderBook(engine *MatchingEngine, opts ...OrderBookOption) *OrderBook {
	book := &OrderBook{
		engine:           engine,
		serializer:       &protocol.DefaultJSONSerializer{},
		cmdChan:          make(chan bookCommand, 32768),
		done:             make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(book)
	}
	return book
}

// Pair returns the traded pair identifier.
func (book *OrderBook) Pair() string {
	return book.engine.Pair()
}

// LastCmdSeqID returns the sequence id of the last processed external
// command, used after a snapshot restore to know where to resume consuming
// the command stream.
func (book *OrderBook) LastCmdSeqID() uint64 {
	return book.lastCmdSeqID.Load()
}

// Start runs the order book loop, processing submissions, cancellations and
// queries until Shutdown is called. Returns nil once all pending commands
// are drained.
func (book *OrderBook) Start() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-book.done:
			return book.drain()
		case cmd := <-book.cmdChan:
			book.process(cmd)
		}
	}
}

// Shutdown signals the loop to stop accepting new commands and blocks until
// every pending command has been processed or the context is done.
func (book *OrderBook) Shutdown(ctx context.Context) error {
	if book.isShutdown.CompareAndSwap(false, true) {
		close(book.done)
	}

	select {
	case <-book.shutdownComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain processes all remaining commands in the channel before returning.
func (book *OrderBook) drain() error {
	defer close(book.shutdownComplete)

	for {
		select {
		case cmd := <-book.cmdChan:
			book.process(cmd)
		default:
			return nil
		}
	}
}

func (book *OrderBook) process(cmd bookCommand) {
	switch cmd.cmdType {
	case cmdSubmit:
		if req, ok := cmd.payload.(*submitRequest); ok {
			result, err := book.engine.Submit(req.Owner, req.Side, req.Price, req.Amount)
			book.respond(cmd, &submitResponse{Result: result, Err: err})
		}
	case cmdCancel:
		if req, ok := cmd.payload.(*cancelRequest); ok {
			book.engine.Cancel(req.Side, req.OrderID)
		}
	case cmdUpdatePrice:
		if req, ok := cmd.payload.(*updatePriceRequest); ok {
			if err := book.engine.UpdatePrice(req.Side, req.OrderID, req.NewPrice); err != nil {
				logger.Warn("order book: update price failed",
					zap.String("pair", book.engine.Pair()),
					zap.Uint64("order_id", req.OrderID),
					zap.Error(err))
			}
		}
	case cmdDepth:
		if limit, ok := cmd.payload.(int); ok {
			book.respond(cmd, book.engine.Depth(limit))
		}
	case cmdOpenOrders:
		if req, ok := cmd.payload.(*openOrdersRequest); ok {
			book.respond(cmd, book.engine.OpenOrders(req.Side, req.Limit))
		}
	case cmdOrderHistory:
		if req, ok := cmd.payload.(*historyRequest); ok {
			book.respond(cmd, book.engine.QueryOrderHistory(req.Start, req.End, req.Limit))
		}
	case cmdTradeHistory:
		if req, ok := cmd.payload.(*historyRequest); ok {
			book.respond(cmd, book.engine.QueryTradeHistory(req.Start, req.End, req.Limit))
		}
	case cmdBest:
		book.respond(cmd, &bestResponse{Ask: book.engine.BestAsk(), Bid: book.engine.BestBid()})
	case cmdStats:
		book.respond(cmd, book.engine.Stats())
	case cmdSnapshot:
		book.respond(cmd, book.engine.createSnapshot())
	case cmdReject:
		if reason, ok := cmd.payload.(RejectReason); ok {
			book.engine.metrics.incRejected()
			book.engine.publish(newRejectLog(book.engine.pair, "", reason))
		}
	}

	if cmd.seqID > 0 {
		book.lastCmdSeqID.Store(cmd.seqID)
	}
}

func (book *OrderBook) respond(cmd bookCommand, result any) {
	if cmd.resp == nil {
		return
	}
	select {
	case cmd.resp <- result:
	default:
		// Nobody is listening anymore, drop it
	}
}

// Submit places an order and waits for the matching outcome. The call blocks
// until the loop has processed the order or the context is done; the result
// reports the resting order id (zero when fully filled), the filled amount
// and the remainder.
func (book *OrderBook) Submit(ctx context.Context, owner string, side Side, price, amount decimal.Decimal) (SubmitResult, error) {
	if book.isShutdown.Load() {
		return SubmitResult{}, ErrShutdown
	}

	respChan := make(chan any, 1)
	cmd := bookCommand{
		cmdType: cmdSubmit,
		payload: &submitRequest{Owner: owner, Side: side, Price: price, Amount: amount},
		resp:    respChan,
	}

	select {
	case book.cmdChan <- cmd:
	case <-ctx.Done():
		return SubmitResult{}, ErrTimeout
	}

	select {
	case res := <-respChan:
		if r, ok := res.(*submitResponse); ok {
			return r.Result, r.Err
		}
		return SubmitResult{}, ErrInternal
	case <-ctx.Done():
		return SubmitResult{}, ErrTimeout
	}
}

// Cancel enqueues a cancellation asynchronously. Cancelling an id that is
// not live is a no-op inside the loop, so callers never need to check
// liveness first.
func (book *OrderBook) Cancel(ctx context.Context, side Side, id uint64) error {
	if book.isShutdown.Load() {
		return ErrShutdown
	}
	if id == 0 {
		return nil
	}

	select {
	case book.cmdChan <- bookCommand{cmdType: cmdCancel, payload: &cancelRequest{Side: side, OrderID: id}}:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// UpdatePrice enqueues a re-pricing request asynchronously.
func (book *OrderBook) UpdatePrice(ctx context.Context, side Side, id uint64, newPrice decimal.Decimal) error {
	if book.isShutdown.Load() {
		return ErrShutdown
	}
	if id == 0 || newPrice.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidParam
	}

	select {
	case book.cmdChan <- bookCommand{cmdType: cmdUpdatePrice, payload: &updatePriceRequest{Side: side, OrderID: id, NewPrice: newPrice}}:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Depth returns the aggregated book up to limit price levels per side.
func (book *OrderBook) Depth(limit int) (*Depth, error) {
	if limit <= 0 {
		return nil, ErrInvalidParam
	}

	res, err := book.query(cmdDepth, limit)
	if err != nil {
		return nil, err
	}
	if depth, ok := res.(*Depth); ok {
		return depth, nil
	}
	return nil, ErrInternal
}

// OpenOrders lists up to limit resting orders of one side, oldest first.
func (book *OrderBook) OpenOrders(side Side, limit int) (*OpenOrdersView, error) {
	res, err := book.query(cmdOpenOrders, &openOrdersRequest{Side: side, Limit: limit})
	if err != nil {
		return nil, err
	}
	if view, ok := res.(*OpenOrdersView); ok {
		return view, nil
	}
	return nil, ErrInternal
}

// OrderHistory returns terminal order records in [start, end), most recent
// first, up to limit.
func (book *OrderBook) OrderHistory(start, end int64, limit int) ([]OrderRecord, error) {
	res, err := book.query(cmdOrderHistory, &historyRequest{Start: start, End: end, Limit: limit})
	if err != nil {
		return nil, err
	}
	if records, ok := res.([]OrderRecord); ok {
		return records, nil
	}
	return nil, ErrInternal
}

// TradeHistory returns trade records in [start, end), most recent first, up
// to limit.
func (book *OrderBook) TradeHistory(start, end int64, limit int) ([]TradeRecord, error) {
	res, err := book.query(cmdTradeHistory, &historyRequest{Start: start, End: end, Limit: limit})
	if err != nil {
		return nil, err
	}
	if records, ok := res.([]TradeRecord); ok {
		return records, nil
	}
	return nil, ErrInternal
}

// Best returns the current best ask and best bid. Either is the sentinel
// empty order when its side is empty.
func (book *OrderBook) Best() (ask Order, bid Order, err error) {
	res, err := book.query(cmdBest, nil)
	if err != nil {
		return Order{}, Order{}, err
	}
	if best, ok := res.(*bestResponse); ok {
		return best.Ask, best.Bid, nil
	}
	return Order{}, Order{}, ErrInternal
}

// GetStats returns size statistics about both book sides.
func (book *OrderBook) GetStats() (*BookStats, error) {
	res, err := book.query(cmdStats, nil)
	if err != nil {
		return nil, err
	}
	if stats, ok := res.(*BookStats); ok {
		return stats, nil
	}
	return nil, ErrInternal
}

// query sends a synchronous read command into the loop with a one second
// timeout on each leg.
func (book *OrderBook) query(cmdType bookCommandType, payload any) (any, error) {
	respChan := make(chan any, 1)

	select {
	case book.cmdChan <- bookCommand{cmdType: cmdType, payload: payload, resp: respChan}:
	case <-book.done:
		return nil, ErrOrderBookClosed
	case <-time.After(time.Second):
		return nil, ErrTimeout
	}

	select {
	case res := <-respChan:
		return res, nil
	case <-time.After(time.Second):
		return nil, ErrTimeout
	}
}

// TakeSnapshot captures the order book state through the command loop, so
// the snapshot is consistent with respect to in-flight submissions.
func (book *OrderBook) TakeSnapshot() (*BookSnapshot, error) {
	respChan := make(chan any, 1)

	select {
	case book.cmdChan <- bookCommand{cmdType: cmdSnapshot, resp: respChan}:
	case <-book.done:
		return nil, ErrOrderBookClosed
	case <-time.After(time.Second):
		return nil, ErrTimeout
	}

	select {
	case res := <-respChan:
		if snap, ok := res.(*BookSnapshot); ok {
			return snap, nil
		}
		return nil, errors.New("unexpected response type for snapshot")
	case <-time.After(5 * time.Second):
		return nil, ErrTimeout
	}
}

// Restore rebuilds the book from a snapshot. Must be called before Start,
// while no other goroutine touches the book.
func (book *OrderBook) Restore(snap *BookSnapshot, lastCmdSeqID uint64) {
	book.engine.restore(snap)
	book.lastCmdSeqID.Store(lastCmdSeqID)
}

// EnqueueCommand routes a wire command into the loop. Payloads are decoded
// lazily here so the routing layer never touches business fields; a payload
// that fails to decode produces a reject log instead of an error, since the
// command stream is fire-and-forget. Commands at or below LastCmdSeqID are
// duplicates and are skipped.
func (book *OrderBook) EnqueueCommand(ctx context.Context, cmd *protocol.Command) error {
	if book.isShutdown.Load() {
		return ErrShutdown
	}
	if cmd == nil {
		return ErrInvalidParam
	}
	if cmd.SeqID > 0 && cmd.SeqID <= book.lastCmdSeqID.Load() {
		return nil
	}

	var inner bookCommand
	inner.seqID = cmd.SeqID

	switch cmd.Type {
	case protocol.CmdSubmitOrder:
		var payload protocol.SubmitOrderCommand
		if err := book.serializer.Unmarshal(cmd.Payload, &payload); err != nil {
			book.rejectPayload(cmd, err)
			return nil
		}
		price, err := decimal.NewFromString(payload.Price)
		if err != nil {
			book.rejectPayload(cmd, err)
			return nil
		}
		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			book.rejectPayload(cmd, err)
			return nil
		}
		inner.cmdType = cmdSubmit
		inner.payload = &submitRequest{Owner: payload.Owner, Side: payload.Side, Price: price, Amount: amount}

	case protocol.CmdCancelOrder:
		var payload protocol.CancelOrderCommand
		if err := book.serializer.Unmarshal(cmd.Payload, &payload); err != nil {
			book.rejectPayload(cmd, err)
			return nil
		}
		inner.cmdType = cmdCancel
		inner.payload = &cancelRequest{Side: payload.Side, OrderID: payload.OrderID}

	case protocol.CmdUpdatePrice:
		var payload protocol.UpdatePriceCommand
		if err := book.serializer.Unmarshal(cmd.Payload, &payload); err != nil {
			book.rejectPayload(cmd, err)
			return nil
		}
		newPrice, err := decimal.NewFromString(payload.NewPrice)
		if err != nil {
			book.rejectPayload(cmd, err)
			return nil
		}
		inner.cmdType = cmdUpdatePrice
		inner.payload = &updatePriceRequest{Side: payload.Side, OrderID: payload.OrderID, NewPrice: newPrice}

	default:
		return ErrInvalidParam
	}

	select {
	case book.cmdChan <- inner:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (book *OrderBook) rejectPayload(cmd *protocol.Command, err error) {
	logger.Warn("order book: invalid command payload",
		zap.String("pair", cmd.Pair),
		zap.Uint64("cmd_seq_id", cmd.SeqID),
		zap.Uint8("cmd_type", uint8(cmd.Type)),
		zap.Error(err))

	select {
	case book.cmdChan <- bookCommand{seqID: cmd.SeqID, cmdType: cmdReject, payload: protocol.RejectReasonInvalidPayload}:
	default:
	}
}
