package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func benchFunds() *MemoryFundStore {
	funds := NewMemoryFundStore()
	funds.Credit("alice", testBaseAsset, decimal.NewFromInt(1_000_000_000))
	funds.Credit("bob", testTradeAsset, decimal.NewFromInt(1_000_000_000))
	return funds
}

func BenchmarkHeapInsertExtract(b *testing.B) {
	h := NewAskHeap()
	prices := make([]decimal.Decimal, 64)
	for i := range prices {
		prices[i] = decimal.NewFromInt(int64(i + 1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.insert(Order{ID: uint64(i + 1), Price: prices[i%len(prices)]})
		if h.size() > 1024 {
			h.extractRoot()
		}
	}
}

func BenchmarkSubmitResting(b *testing.B) {
	engine := NewMatchingEngine(testPair, testBaseAsset, testTradeAsset, benchFunds())
	amount := decimal.NewFromInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Descending bid prices never cross
		_, _ = engine.Submit("alice", Buy, decimal.NewFromInt(int64(b.N-i)), amount)
	}
}

func BenchmarkSubmitMatching(b *testing.B) {
	engine := NewMatchingEngine(testPair, testBaseAsset, testTradeAsset, benchFunds())
	price := decimal.NewFromInt(100)
	amount := decimal.NewFromInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Submit("bob", Sell, price, amount)
		_, _ = engine.Submit("alice", Buy, price, amount)
	}
}

func BenchmarkOrderBookSubmit(b *testing.B) {
	engine := NewMatchingEngine(testPair, testBaseAsset, testTradeAsset, benchFunds())
	book := NewOrderBook(engine)
	go func() {
		_ = book.Start()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = book.Shutdown(ctx)
	}()

	ctx := context.Background()
	price := decimal.NewFromInt(100)
	amount := decimal.NewFromInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = book.Submit(ctx, "bob", Sell, price, amount)
		_, _ = book.Submit(ctx, "alice", Buy, price, amount)
	}
}
