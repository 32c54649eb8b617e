// Package metrics exposes engine and feed counters to Prometheus. All
// collectors read atomic or single-writer counters at scrape time, so the hot
// path pays nothing for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"atlas/domain/orderbook"
	"atlas/feed"
)

// Register installs collectors for the engine and feed handler on reg.
func Register(reg prometheus.Registerer, engine *orderbook.MatchingEngine, handler *feed.Handler) {
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "atlas_trades_total",
			Help: "Trades matched since start.",
		}, func() float64 { return float64(engine.TotalTrades()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "atlas_volume_total",
			Help: "Quantity matched since start.",
		}, func() float64 { return float64(engine.TotalVolume()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "atlas_orders_submitted_total",
			Help: "Orders submitted since start.",
		}, func() float64 { return float64(engine.TotalOrdersSubmitted()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "atlas_orders_cancelled_total",
			Help: "Orders cancelled since start.",
		}, func() float64 { return float64(engine.TotalOrdersCancelled()) }),
	)

	if handler != nil {
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "atlas_feed_messages_received_total",
				Help: "L2 messages accepted onto the ring.",
			}, func() float64 { return float64(handler.Stats().MessagesReceived) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "atlas_feed_messages_processed_total",
				Help: "L2 messages applied to the book.",
			}, func() float64 { return float64(handler.Stats().MessagesProcessed) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "atlas_feed_sequence_gaps_total",
				Help: "Sequence discontinuities observed.",
			}, func() float64 { return float64(handler.Stats().SequenceGaps) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "atlas_feed_dropped_total",
				Help: "Ring pushes rejected because the ring was full, including pushes later retried.",
			}, func() float64 { return float64(handler.Stats().Dropped) }),
		)
	}
}
