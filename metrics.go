package exchange

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's prometheus instruments. All methods are nil-safe
// so an engine without metrics pays only a nil check on the hot path.
type Metrics struct {
	ordersSubmitted prometheus.Counter
	ordersRejected  prometheus.Counter
	ordersCancelled prometheus.Counter
	tradesMatched   prometheus.Counter
	restingOrders   *prometheus.GaugeVec
}

// NewMetrics creates and registers the engine instruments on reg.
// The pair is attached as a constant label so several engines can share one
// registry.
func NewMetrics(reg prometheus.Registerer, pair string) *Metrics {
	constLabels := prometheus.Labels{"pair": pair}

	m := &Metrics{
		ordersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "exchange_orders_submitted_total",
			Help:        "Number of submit calls accepted by the engine.",
			ConstLabels: constLabels,
		}),
		ordersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "exchange_orders_rejected_total",
			Help:        "Number of submit calls rejected before or during matching.",
			ConstLabels: constLabels,
		}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "exchange_orders_cancelled_total",
			Help:        "Number of resting orders cancelled.",
			ConstLabels: constLabels,
		}),
		tradesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "exchange_trades_matched_total",
			Help:        "Number of fills executed.",
			ConstLabels: constLabels,
		}),
		restingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "exchange_resting_orders",
			Help:        "Number of orders currently resting in the book.",
			ConstLabels: constLabels,
		}, []string{"side"}),
	}

	reg.MustRegister(m.ordersSubmitted, m.ordersRejected, m.ordersCancelled, m.tradesMatched, m.restingOrders)
	return m
}

func (m *Metrics) incSubmitted() {
	if m != nil {
		m.ordersSubmitted.Inc()
	}
}

func (m *Metrics) incRejected() {
	if m != nil {
		m.ordersRejected.Inc()
	}
}

func (m *Metrics) incCancelled() {
	if m != nil {
		m.ordersCancelled.Inc()
	}
}

func (m *Metrics) incTrades() {
	if m != nil {
		m.tradesMatched.Inc()
	}
}

func (m *Metrics) setResting(side Side, n int64) {
	if m == nil {
		return
	}
	label := "buy"
	if side == Sell {
		label = "sell"
	}
	m.restingOrders.WithLabelValues(label).Set(float64(n))
}
