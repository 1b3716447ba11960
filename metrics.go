// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dispatch results
const (
	resultFound    = "found"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics holds the Prometheus collectors of one or more servers. A nil
// *Metrics records nothing.
type Metrics struct {
	dispatchTotal     *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	handshakes        prometheus.Gauge
	acceptErrors      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "route",
			Name:      "dispatch_total",
			Help:      "Connections dispatched, by result",
		}, []string{"result"}),
		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "route",
			Name:      "handshake_duration_seconds",
			Help:      "Duration of the secure handshake in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		handshakes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "route",
			Name:      "handshakes_inflight",
			Help:      "Secure handshakes in progress",
		}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "route",
			Name:      "accept_errors_total",
			Help:      "Listener accept failures",
		}),
	}
}

func (m *Metrics) dispatched(result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) handshakeStarted() {
	if m == nil {
		return
	}
	m.handshakes.Inc()
}

func (m *Metrics) handshakeDone(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.Dec()
	m.handshakeDuration.Observe(d.Seconds())
}

func (m *Metrics) acceptError() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}
