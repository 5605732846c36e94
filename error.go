package exchange

import "errors"

var (
	ErrInvalidParam      = errors.New("the param is invalid")
	ErrInsufficientFunds = errors.New("insufficient balance to settle the fill")
	ErrInternal          = errors.New("internal server error")
	ErrTimeout           = errors.New("timeout")
	ErrShutdown          = errors.New("order book is shutting down")
	ErrNotFound          = errors.New("not found")
	ErrOrderBookClosed   = errors.New("order book is closed")
)
