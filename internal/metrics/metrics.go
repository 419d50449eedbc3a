// Package metrics provides Prometheus instrumentation for the order
// management backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersCreated counts accepted order creations, partitioned by type.
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oms_orders_created_total",
		Help: "Total number of orders created",
	}, []string{"order_type"})

	// OrdersRejected counts order creations refused at validation.
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_orders_rejected_total",
		Help: "Order creations rejected by validation",
	})

	// OrdersCancelled counts orders cancelled through the API.
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_orders_cancelled_total",
		Help: "Total number of orders cancelled",
	})

	// StateTransitions counts lifecycle transitions by target state.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oms_order_state_transitions_total",
		Help: "Order state transitions applied",
	}, []string{"to_state"})

	// ExecutionsRecorded counts executions written to the ledger.
	ExecutionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_executions_recorded_total",
		Help: "Total number of executions recorded",
	})

	// FillsApplied counts position-ledger fill applications.
	FillsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_fills_applied_total",
		Help: "Fills folded into positions",
	})

	// OverfillRejections counts executions refused for exceeding order quantity.
	OverfillRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_overfill_rejections_total",
		Help: "Executions rejected because they would exceed order quantity",
	})

	// PnLSnapshots counts snapshot upserts.
	PnLSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_pnl_snapshots_total",
		Help: "P&L snapshots written",
	})

	// FeedMessages counts market data frames consumed from the quote feed.
	FeedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_feed_messages_total",
		Help: "Market data messages consumed",
	})

	// FeedReconnects counts feed connection drops that led to a redial.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oms_feed_reconnects_total",
		Help: "Market data feed reconnects",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
