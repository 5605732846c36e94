package protocol

// CommandType defines the type of the command (using uint8 for memory alignment and performance)
type CommandType uint8

// Command Type Numbering Strategy:
// - 0-50:  Book management commands (internal, low-frequency admin operations)
// - 51+:   Trading commands (external, high-frequency hot path)
const (
	CmdUnknown CommandType = 0

	// Trading Commands (51+, external use)
	CmdSubmitOrder CommandType = 51
	CmdCancelOrder CommandType = 52
	CmdUpdatePrice CommandType = 53
)

// Command is the standard carrier for commands entering the order book.
// It is designed to be efficient for serialization and compatible with Event Sourcing.
type Command struct {
	// Version is the protocol version for backward compatibility.
	Version uint8 `json:"version"`

	// Pair is the traded asset pair this command targets (Routing Header).
	Pair string `json:"pair"`

	// SeqID is used for global ordering and deduplication.
	SeqID uint64 `json:"seq_id"`

	// Type identifies the payload type for fast routing.
	Type CommandType `json:"type"`

	// Payload contains the serialized business data (e.g., JSON bytes of SubmitOrderCommand).
	// We use lazy deserialization to optimize routing performance.
	Payload []byte `json:"payload"`

	// Metadata stores non-business context (e.g., Tracing ID, Source IP).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubmitOrderCommand is the payload for submitting a new order.
type SubmitOrderCommand struct {
	Owner     string `json:"owner"`
	Side      Side   `json:"side"`
	Price     string `json:"price"` // Using string to prevent precision loss in JSON
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// CancelOrderCommand is the payload for cancelling a resting order.
type CancelOrderCommand struct {
	OrderID   uint64 `json:"order_id"`
	Side      Side   `json:"side"`
	Timestamp int64  `json:"timestamp"`
}

// UpdatePriceCommand is the payload for re-pricing a resting order.
type UpdatePriceCommand struct {
	OrderID   uint64 `json:"order_id"`
	Side      Side   `json:"side"`
	NewPrice  string `json:"new_price"`
	Timestamp int64  `json:"timestamp"`
}

// GetDepthRequest is the payload for querying order book depth.
// This is used for synchronous queries, separate from the async command stream.
type GetDepthRequest struct {
	Pair  string `json:"pair"`
	Limit uint32 `json:"limit"`
}

// GetHistoryRequest is the payload for querying order or trade history.
// The range is half-open: [Start, End).
type GetHistoryRequest struct {
	Pair  string `json:"pair"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Limit int    `json:"limit"`
}
