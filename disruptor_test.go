package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcHandler wraps a function as an EventHandler.
type funcHandler[T any] struct {
	fn func(T)
}

func (h *funcHandler[T]) OnEvent(event T) {
	h.fn(event)
}

func TestRingBufferBasicOperations(t *testing.T) {
	var processed []int64
	var mu sync.Mutex

	handler := &funcHandler[int64]{
		fn: func(v int64) {
			mu.Lock()
			processed = append(processed, v)
			mu.Unlock()
		},
	}

	rb := NewRingBuffer[int64](16, handler)
	rb.Start()

	for i := int64(1); i <= 10; i++ {
		rb.Publish(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rb.Shutdown(ctx))

	// Consumed in publish order
	require.Len(t, processed, 10)
	for i := int64(1); i <= 10; i++ {
		assert.Equal(t, i, processed[i-1])
	}
}

func TestRingBufferSequenceMonitoring(t *testing.T) {
	handler := &funcHandler[int64]{fn: func(int64) {}}
	rb := NewRingBuffer[int64](16, handler)

	assert.Equal(t, int64(-1), rb.ProducerSequence())
	assert.Equal(t, int64(-1), rb.ConsumerSequence())

	rb.Start()

	for i := 0; i < 3; i++ {
		rb.Publish(int64(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rb.Shutdown(ctx))

	assert.Equal(t, int64(2), rb.ProducerSequence())
	assert.Equal(t, int64(2), rb.ConsumerSequence())
	assert.Equal(t, int64(0), rb.PendingEvents())
}

func TestRingBufferShutdownTimeout(t *testing.T) {
	blockCh := make(chan struct{})
	handler := &funcHandler[int64]{
		fn: func(int64) {
			<-blockCh
		},
	}

	rb := NewRingBuffer[int64](16, handler)
	rb.Start()
	rb.Publish(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rb.Shutdown(ctx), ErrRingBufferTimeout)

	close(blockCh)
}

func TestRingBufferPublishAfterShutdownIsDropped(t *testing.T) {
	var count atomic.Int64
	handler := &funcHandler[int64]{fn: func(int64) { count.Add(1) }}

	rb := NewRingBuffer[int64](16, handler)
	rb.Start()
	rb.Publish(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rb.Shutdown(ctx))

	rb.Publish(2)
	assert.Equal(t, int64(1), count.Load())
}

func TestRingBufferConcurrentPublish(t *testing.T) {
	var count atomic.Int64
	handler := &funcHandler[int64]{fn: func(int64) { count.Add(1) }}

	rb := NewRingBuffer[int64](1024, handler)
	rb.Start()

	const numPublishers = 10
	const eventsPerPublisher = 500

	var wg sync.WaitGroup
	wg.Add(numPublishers)
	for i := 0; i < numPublishers; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				rb.Publish(int64(id*eventsPerPublisher + j))
			}
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rb.Shutdown(ctx))

	assert.Equal(t, int64(numPublishers*eventsPerPublisher), count.Load())
}

func TestRingBufferCapacityValidation(t *testing.T) {
	handler := &funcHandler[int64]{fn: func(int64) {}}

	assert.Panics(t, func() { NewRingBuffer[int64](15, handler) })
	assert.Panics(t, func() { NewRingBuffer[int64](0, handler) })
	assert.Panics(t, func() { NewRingBuffer[int64](-1, handler) })
	assert.NotPanics(t, func() { NewRingBuffer[int64](16, handler) })
}

func TestRingPublishLogDecouplesEngine(t *testing.T) {
	var mu sync.Mutex
	var received []*BookLog

	handler := &funcHandler[*BookLog]{
		fn: func(log *BookLog) {
			mu.Lock()
			received = append(received, log)
			mu.Unlock()
		},
	}

	publisher := NewRingPublishLog(1024, handler)
	publisher.Start()

	funds := NewMemoryFundStore()
	funds.Credit("alice", testBaseAsset, decimal.NewFromInt(1000))
	funds.Credit("bob", testTradeAsset, decimal.NewFromInt(1000))
	engine := NewMatchingEngine(testPair, testBaseAsset, testTradeAsset, funds, WithPublisher(publisher))

	submitOk(t, engine, "bob", Sell, 10, 1)
	submitOk(t, engine, "alice", Buy, 10, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, publisher.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)

	// Clones survive the engine recycling its pooled logs
	assert.Equal(t, LogTypeOpen, received[0].Type)
	assert.Equal(t, uint64(1), received[0].SequenceID)
	assert.Equal(t, LogTypeMatch, received[1].Type)
	assert.Equal(t, uint64(2), received[1].SequenceID)
	assert.Equal(t, "10", received[1].Price.String())
	assert.Equal(t, uint64(1), received[1].MakerOrderID)
}
