// Package metrics exposes the worker's Prometheus surface, wired the
// same way the teacher's HTTP router mounts promhttp.Handler()
// alongside its other routes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every collector the worker publishes. A single
// instance is constructed at startup and threaded through the sfu
// package's observers so packet/health events update counters without
// sfu importing prometheus directly.
type Registry struct {
	PacketsReceived   *prometheus.CounterVec
	PacketsForwarded  *prometheus.CounterVec
	PacketsDropped    *prometheus.CounterVec
	BytesForwarded    *prometheus.CounterVec
	NackRequested     *prometheus.CounterVec
	NackSatisfied     *prometheus.CounterVec
	PliRequested      *prometheus.CounterVec
	KeyFramesRequested *prometheus.CounterVec
	StreamHealthy     *prometheus.GaugeVec
	EffectiveProfile  *prometheus.GaugeVec
}

// New registers every collector against reg. Passing
// prometheus.NewRegistry() keeps tests hermetic; production wires
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "packets_received_total",
			Help:      "Inbound RTP packets accepted by a producer stream.",
		}, []string{"producer_id", "profile"}),
		PacketsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "packets_forwarded_total",
			Help:      "RTP packets forwarded to a consumer's transport.",
		}, []string{"consumer_id"}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped, labelled by reason.",
		}, []string{"reason"}),
		BytesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "bytes_forwarded_total",
			Help:      "Payload bytes forwarded to a consumer's transport.",
		}, []string{"consumer_id"}),
		NackRequested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "nack_requested_total",
			Help:      "Retransmission requests issued for a consumer's outbound stream.",
		}, []string{"consumer_id"}),
		NackSatisfied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "nack_satisfied_total",
			Help:      "Retransmission requests served from the retransmission buffer.",
		}, []string{"consumer_id"}),
		PliRequested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "pli_requested_total",
			Help:      "Picture-loss-indication requests sent upstream to a producer.",
		}, []string{"producer_id", "profile"}),
		KeyFramesRequested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "keyframes_requested_total",
			Help:      "Key frame requests raised by a profile change or resume.",
		}, []string{"producer_id", "profile"}),
		StreamHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sfu",
			Name:      "stream_healthy",
			Help:      "1 if the named stream is currently healthy, 0 otherwise.",
		}, []string{"stream_id"}),
		EffectiveProfile: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sfu",
			Name:      "consumer_effective_profile",
			Help:      "Numeric rank of a consumer's current effective profile.",
		}, []string{"consumer_id"}),
	}
}

// RecordHealth updates the StreamHealthy gauge for streamID.
func (r *Registry) RecordHealth(streamID string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.StreamHealthy.WithLabelValues(streamID).Set(v)
}
