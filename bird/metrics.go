package bird

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bird",
			Name:      "calls_total",
			Help:      "Total number of calls to the backend by kind and result.",
		},
		[]string{"kind", "result"},
	)
	pendingCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bird",
		Name:      "pending_calls",
		Help:      "Number of calls waiting for their reply frame.",
	})
	inboundFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bird",
			Name:      "inbound_frames_total",
			Help:      "Total number of frames received by action.",
		},
		[]string{"action"},
	)
	// outcome: hit, wait, miss, failure
	dedupeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bird",
			Name:      "dedupe_total",
			Help:      "Total number of deduplicated calls by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bird",
			Name:      "queue_depth",
			Help:      "Number of queued or running calls by kind.",
		},
		[]string{"kind"},
	)
)

// RegisterMetrics registers the bird collectors with r. Collectors which are
// already registered are skipped.
func RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{callsTotal, pendingCalls, inboundFrames, dedupeTotal, queueDepth} {
		if err := r.Register(c); err != nil {
			are := prometheus.AlreadyRegisteredError{}
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
