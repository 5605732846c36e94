package exchange

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrRingBufferTimeout is returned when a ring buffer shutdown times out.
var ErrRingBufferTimeout = errors.New("ring buffer: shutdown timeout")

// EventHandler consumes events drained from a RingBuffer.
type EventHandler[T any] interface {
	OnEvent(event T)
}

// RingBuffer is an MPSC ring buffer: many producers claim slots with a CAS
// on the producer sequence, a single consumer goroutine drains them in order.
// Padding keeps the hot sequences on separate cache lines.
type RingBuffer[T any] struct {
	_                [56]byte
	producerSequence atomic.Int64
	_                [56]byte
	consumerSequence atomic.Int64
	_                [56]byte

	buffer     []T
	bufferMask int64
	capacity   int64

	// published[i] holds the sequence last written to slot i; the consumer
	// spins until it equals the sequence it expects, which closes the gap
	// between a producer claiming a slot and finishing its write.
	published []int64

	handler EventHandler[T]

	isShutdown atomic.Bool
}

// NewRingBuffer creates an MPSC ring buffer. capacity must be a power of 2.
func NewRingBuffer[T any](capacity int64, handler EventHandler[T]) *RingBuffer[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("capacity must be a power of 2")
	}

	rb := &RingBuffer[T]{
		buffer:     make([]T, capacity),
		published:  make([]int64, capacity),
		capacity:   capacity,
		bufferMask: capacity - 1,
		handler:    handler,
	}

	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)

	for i := range rb.published {
		atomic.StoreInt64(&rb.published[i], -1)
	}

	return rb
}

// Publish writes an event into the ring buffer. Safe for multiple producers.
// Blocks (spinning) while the buffer is full; drops the event after shutdown.
func (rb *RingBuffer[T]) Publish(event T) {
	if rb.isShutdown.Load() {
		return
	}

	var nextSeq int64
	for {
		currentProducerSeq := rb.producerSequence.Load()
		nextSeq = currentProducerSeq + 1

		// The producer must not lap the consumer by a full buffer.
		wrapPoint := nextSeq - rb.capacity
		consumerSeq := rb.consumerSequence.Load()

		if wrapPoint > consumerSeq {
			runtime.Gosched()
			continue
		}

		if rb.producerSequence.CompareAndSwap(currentProducerSeq, nextSeq) {
			break
		}
		runtime.Gosched()
	}

	index := nextSeq & rb.bufferMask
	rb.buffer[index] = event

	atomic.StoreInt64(&rb.published[index], nextSeq)
}

// Start launches the consumer goroutine.
func (rb *RingBuffer[T]) Start() {
	go rb.consumerLoop()
}

// Shutdown stops accepting events and waits until the consumer has drained
// every claimed slot, or until the context is done.
func (rb *RingBuffer[T]) Shutdown(ctx context.Context) error {
	rb.isShutdown.Store(true)

	for {
		select {
		case <-ctx.Done():
			return ErrRingBufferTimeout
		default:
			if rb.ConsumerSequence() >= rb.ProducerSequence() {
				return nil
			}
			runtime.Gosched()
		}
	}
}

func (rb *RingBuffer[T]) consumerLoop() {
	nextConsumerSeq := rb.consumerSequence.Load() + 1

	for {
		availableSeq := rb.producerSequence.Load()

		if rb.isShutdown.Load() {
			rb.drainRemaining(nextConsumerSeq)
			return
		}

		processed := false
		for nextConsumerSeq <= availableSeq {
			index := nextConsumerSeq & rb.bufferMask

			for atomic.LoadInt64(&rb.published[index]) != nextConsumerSeq {
				runtime.Gosched()
			}

			rb.handler.OnEvent(rb.buffer[index])

			rb.consumerSequence.Store(nextConsumerSeq)
			nextConsumerSeq++
			processed = true
		}

		if !processed {
			runtime.Gosched()
		}
	}
}

func (rb *RingBuffer[T]) drainRemaining(nextConsumerSeq int64) {
	availableSeq := rb.producerSequence.Load()

	for nextConsumerSeq <= availableSeq {
		index := nextConsumerSeq & rb.bufferMask

		for atomic.LoadInt64(&rb.published[index]) != nextConsumerSeq {
			runtime.Gosched()
		}

		rb.handler.OnEvent(rb.buffer[index])

		rb.consumerSequence.Store(nextConsumerSeq)
		nextConsumerSeq++
	}
}

// ConsumerSequence returns the last consumed sequence (for monitoring).
func (rb *RingBuffer[T]) ConsumerSequence() int64 {
	return rb.consumerSequence.Load()
}

// ProducerSequence returns the last claimed sequence (for monitoring).
func (rb *RingBuffer[T]) ProducerSequence() int64 {
	return rb.producerSequence.Load()
}

// PendingEvents returns the number of claimed but not yet consumed events.
func (rb *RingBuffer[T]) PendingEvents() int64 {
	return rb.producerSequence.Load() - rb.consumerSequence.Load()
}

// RingPublishLog is a PublishLog that hands BookLogs to an EventHandler on a
// dedicated consumer goroutine, so downstream work (feeds, persistence, an
// AggregatedBook) never blocks the match loop. Logs are cloned before
// publishing per the PublishLog pooling contract.
type RingPublishLog struct {
	ring *RingBuffer[*BookLog]
}

// NewRingPublishLog creates a ring-buffered publisher. capacity must be a
// power of 2.
func NewRingPublishLog(capacity int64, handler EventHandler[*BookLog]) *RingPublishLog {
	return &RingPublishLog{
		ring: NewRingBuffer[*BookLog](capacity, handler),
	}
}

// Start launches the consumer goroutine.
func (p *RingPublishLog) Start() {
	p.ring.Start()
}

// Shutdown drains the ring and stops the consumer.
func (p *RingPublishLog) Shutdown(ctx context.Context) error {
	return p.ring.Shutdown(ctx)
}

// Publish clones the logs and enqueues them.
func (p *RingPublishLog) Publish(logs ...*BookLog) {
	for _, log := range logs {
		cpy := new(BookLog)
		*cpy = *log
		p.ring.Publish(cpy)
	}
}
