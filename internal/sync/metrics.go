package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_remote_operations_total",
			Help: "Remote cart mutations dispatched by the sync controller",
		},
		[]string{"op", "result"},
	)

	rollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_rollbacks_total",
			Help: "Optimistic cart mutations rolled back after a remote failure",
		},
	)

	collapsedEditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_collapsed_edits_total",
			Help: "Quantity edits collapsed into an existing debounce window",
		},
	)
)
