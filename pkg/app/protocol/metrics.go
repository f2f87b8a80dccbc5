package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation counters and gauges, registered once at package load and
// served by the API process's Prometheus endpoint.
var (
	ordersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predimarket_orders_placed_total",
			Help: "Total number of orders placed, by market and outcome",
		},
		[]string{"market_id", "outcome"},
	)

	sharesFilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predimarket_shares_filled_total",
			Help: "Total shares filled across cross-outcome matching",
		},
		[]string{"market_id", "outcome"},
	)

	resolutionWindowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predimarket_resolution_window_transitions_total",
			Help: "Total number of resolution/dispute round transitions",
		},
		[]string{"market_id", "round"},
	)

	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predimarket_claims_total",
			Help: "Total number of earnings claims processed",
		},
		[]string{"market_id"},
	)

	marketsOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predimarket_markets_open",
		Help: "Number of markets currently open for trading",
	})
)
