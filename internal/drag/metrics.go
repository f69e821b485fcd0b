package drag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// gestureTotal counts finished gestures by result (click, commit)
	gestureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_drag_gestures_total",
		Help: "Finished drag gestures by result",
	}, []string{"result"})

	// snapTotal counts commits that reparented onto a snap target
	snapTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbor_drag_snaps_total",
		Help: "Drag commits that snap-connected a parentless node",
	})

	// droppedMoves counts pointer moves discarded by the frame throttle
	droppedMoves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbor_drag_dropped_moves_total",
		Help: "Pointer-move events dropped by the per-frame throttle",
	})

	// subtreeSize tracks how many nodes move with each committed drag
	subtreeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbor_drag_subtree_size",
		Help:    "Nodes moved per committed drag (target plus descendants)",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)
