package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersCreated counts orders accepted by the lifecycle manager
var OrdersCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggerbook_orders_created_total",
		Help: "Total number of trigger orders created",
	},
	[]string{"pair", "direction"},
)

// OrdersCancelled counts successful owner cancellations
var OrdersCancelled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggerbook_orders_cancelled_total",
		Help: "Total number of trigger orders cancelled by their owner",
	},
	[]string{"pair"},
)

// OrdersFilled counts orders executed by the trigger engine
var OrdersFilled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triggerbook_orders_filled_total",
		Help: "Total number of trigger orders filled",
	},
	[]string{"pair", "direction"},
)

// Scan outcome metrics
var (
	SlippageRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triggerbook_slippage_rejections_total",
			Help: "Settlement attempts rolled back because realized output was below the slippage floor",
		},
		[]string{"pair"},
	)

	SettlementFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triggerbook_settlement_failures_total",
			Help: "Settlement attempts that failed for reasons other than slippage",
		},
		[]string{"pair"},
	)

	BudgetExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triggerbook_budget_exhausted_total",
			Help: "Price events whose scan stopped early because the execution budget ran out",
		},
		[]string{"pair"},
	)

	StaleRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triggerbook_stale_entries_removed_total",
			Help: "Terminal orders removed from the bucket index during scans",
		},
		[]string{"pair"},
	)

	ReentrantCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triggerbook_reentrant_price_events_total",
			Help: "Price events ignored because a scan was already active",
		},
		[]string{"pair"},
	)
)

// ScanLatency records the wall time spent inside one price event
var ScanLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "triggerbook_scan_latency_seconds",
		Help:    "Latency in seconds of a single price event scan",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	},
	[]string{"pair"},
)

// OpenOrders tracks orders currently resting in the index
var OpenOrders = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "triggerbook_open_orders",
		Help: "Number of Open trigger orders",
	},
	[]string{"pair"},
)

func init() {
	prometheus.MustRegister(OrdersCreated, OrdersCancelled, OrdersFilled)
	prometheus.MustRegister(SlippageRejections, SettlementFailures, BudgetExhausted, StaleRemoved, ReentrantCalls)
	prometheus.MustRegister(ScanLatency, OpenOrders)
}
