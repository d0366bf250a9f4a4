// Package metrics exposes a Prometheus-backed Recorder for the events this
// core's connection state machine and congestion controller produce: a
// handful of package-level collectors registered once, wrapped by a small
// struct with one method per event so call sites never touch a prometheus
// type directly.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dif001/mvfst/internal/protocol"
)

const namespace = "mvfst"

var (
	connectionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_started_total",
		Help:      "Connections started",
	})
	connectionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_closed_total",
		Help:      "Connections closed, by outcome",
	}, []string{"outcome"})
	handshakeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handshake_duration_seconds",
		Help:      "Time from Start to the handshake becoming Established",
		Buckets:   prometheus.ExponentialBuckets(0.001, 1.3, 35),
	})
	packetsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Packets handed to the congestion controller as sent",
	})
	packetsAcked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_acked_total",
		Help:      "Packets newly acknowledged",
	})
	packetsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_lost_total",
		Help:      "Packets declared lost",
	})
	congestionWindow = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "congestion_window_bytes",
		Help:      "Current congestion window",
	})
)

// Recorder records this core's events against a Prometheus registerer. A nil
// *Recorder is valid and every method on it is a no-op, so callers can leave
// metrics unset without guarding each call site.
type Recorder struct{}

// NewRecorder registers this package's collectors with the default
// Prometheus registerer and returns a Recorder bound to it.
func NewRecorder() *Recorder { return NewRecorderWithRegisterer(prometheus.DefaultRegisterer) }

// NewRecorderWithRegisterer registers this package's collectors with
// registerer. Registering the same collector twice (e.g. constructing two
// Recorders in one process) is not treated as an error.
func NewRecorderWithRegisterer(registerer prometheus.Registerer) *Recorder {
	for _, c := range []prometheus.Collector{
		connectionsStarted, connectionsClosed, handshakeDuration,
		packetsSent, packetsAcked, packetsLost, congestionWindow,
	} {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return &Recorder{}
}

func (r *Recorder) ConnectionStarted() {
	if r == nil {
		return
	}
	connectionsStarted.Inc()
}

func (r *Recorder) ConnectionClosed(outcome string) {
	if r == nil {
		return
	}
	connectionsClosed.WithLabelValues(outcome).Inc()
}

func (r *Recorder) HandshakeCompleted(d time.Duration) {
	if r == nil {
		return
	}
	handshakeDuration.Observe(d.Seconds())
}

func (r *Recorder) PacketSent() {
	if r == nil {
		return
	}
	packetsSent.Inc()
}

func (r *Recorder) PacketsAcked(n int) {
	if r == nil || n <= 0 {
		return
	}
	packetsAcked.Add(float64(n))
}

func (r *Recorder) PacketsLost(n int) {
	if r == nil || n <= 0 {
		return
	}
	packetsLost.Add(float64(n))
}

func (r *Recorder) CongestionWindowUpdated(cwnd protocol.ByteCount) {
	if r == nil {
		return
	}
	congestionWindow.Set(float64(cwnd))
}
