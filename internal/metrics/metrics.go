// Package metrics exposes the termination core's diagnostic gauges:
// live epoch count, compressed window size, and in-flight wave count.
// These are informational only, never consulted by the detectors
// themselves.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LiveEpochs is the number of epoch records a node currently tracks
	// that have not yet reached the released phase, labeled by node.
	LiveEpochs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vtterm",
			Name:      "live_epochs",
			Help:      "Number of live (non-released) epoch records tracked per node.",
		},
		[]string{"node"},
	)

	// WindowIntervals is the number of compressed generation intervals
	// held in a node's epoch window, labeled by node.
	WindowIntervals = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vtterm",
			Name:      "window_intervals",
			Help:      "Number of compressed intervals in a node's epoch window.",
		},
		[]string{"node"},
	)

	// InFlightWaves is the number of collective epochs currently running a
	// Wave reduce, labeled by node.
	InFlightWaves = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vtterm",
			Name:      "inflight_waves",
			Help:      "Number of collective epochs currently awaiting a wave reduce result.",
		},
		[]string{"node"},
	)
)

func init() {
	prometheus.MustRegister(LiveEpochs, WindowIntervals, InFlightWaves)
}
