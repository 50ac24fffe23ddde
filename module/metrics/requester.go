package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/membercoin/membernode/module"
)

type RequesterCollector struct {
	requested      *prometheus.CounterVec
	received       *prometheus.CounterVec
	receiveLatency *prometheus.HistogramVec
	rejected       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	pending        *prometheus.GaugeVec
	inFlight       prometheus.Gauge
	flagged        *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
}

var _ module.RequesterMetrics = (*RequesterCollector)(nil)

func NewRequesterCollector(registerer prometheus.Registerer) *RequesterCollector {
	factory := promauto.With(registerer)

	rc := &RequesterCollector{
		requested: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "objects_requested_total",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of get-data requests issued per object",
		}, []string{LabelKind}),

		received: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "objects_received_total",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of requested objects delivered",
		}, []string{LabelKind}),

		receiveLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "object_receive_seconds",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "time from the first request of an object to its delivery",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{LabelKind}),

		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "objects_rejected_total",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of objects given up after every source was rejected",
		}, []string{LabelKind}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "objects_dropped_total",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of objects given up because no source remained",
		}, []string{LabelKind}),

		pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:      "objects_pending",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of tracked objects not yet received",
		}, []string{LabelResource}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "blocks_in_flight",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of blocks requested and not yet received",
		}),

		flagged: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "peers_flagged_total",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of peers flagged for disconnection",
		}, []string{LabelReason}),

		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "requests_rate_limited_total",
			Namespace: namespaceNode,
			Subsystem: subsystemRequester,
			Help:      "the number of requests deferred by a pacer",
		}, []string{LabelKind}),
	}

	return rc
}

func (rc *RequesterCollector) ObjectRequested(kind string) {
	rc.requested.WithLabelValues(kind).Inc()
}

func (rc *RequesterCollector) ObjectReceived(kind string, sinceFirstRequest time.Duration) {
	rc.received.WithLabelValues(kind).Inc()
	rc.receiveLatency.WithLabelValues(kind).Observe(sinceFirstRequest.Seconds())
}

func (rc *RequesterCollector) ObjectRejected(kind string) {
	rc.rejected.WithLabelValues(kind).Inc()
}

func (rc *RequesterCollector) ObjectDropped(kind string) {
	rc.dropped.WithLabelValues(kind).Inc()
}

func (rc *RequesterCollector) ObjectsPending(txns int, blocks int) {
	rc.pending.WithLabelValues("tx").Set(float64(txns))
	rc.pending.WithLabelValues("block").Set(float64(blocks))
}

func (rc *RequesterCollector) BlocksInFlight(count int) {
	rc.inFlight.Set(float64(count))
}

func (rc *RequesterCollector) PeerFlagged(reason string) {
	rc.flagged.WithLabelValues(reason).Inc()
}

func (rc *RequesterCollector) RequestRateLimited(kind string) {
	rc.rateLimited.WithLabelValues(kind).Inc()
}
