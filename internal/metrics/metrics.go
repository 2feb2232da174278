// Package metrics provides Prometheus instrumentation for the trade engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts placement outcomes, partitioned by segment and result.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thefx_orders_total",
		Help: "Total order placements",
	}, []string{"segment", "result"})

	// ClosesTotal counts position closes by reason.
	ClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thefx_position_closes_total",
		Help: "Total position closes",
	}, []string{"reason"})

	// RMSForceCloses counts positions force-closed by the risk sweep.
	RMSForceCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thefx_rms_force_closes_total",
		Help: "Positions force-closed by the risk management sweep",
	})

	// OpenPositions tracks currently OPEN positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thefx_open_positions",
		Help: "Number of currently open positions",
	})

	// MarginDrift reports the reconciliation drift between a wallet's used
	// margin and the sum over its open positions. Non-zero is a bug signal.
	MarginDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "thefx_margin_drift",
		Help: "usedMargin minus sum of open-position margin, per user",
	}, []string{"user"})

	// TickBatchDuration tracks one ApplyPriceTick pass.
	TickBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thefx_tick_batch_seconds",
		Help:    "Duration of one price-tick batch pass",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})
)
