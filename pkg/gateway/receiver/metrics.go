// Copyright © 2018 One Concern

package receiver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultBusy     = "busy"
)

// serverMetrics are exposed to prometheus when the server is given a registerer
type serverMetrics struct {
	leases       *prometheus.CounterVec
	drops        *prometheus.CounterVec
	payloads     *prometheus.CounterVec
	payloadBytes prometheus.Counter
	activeLeases prometheus.GaugeFunc
}

func newServerMetrics(reg prometheus.Registerer, leases *leaseRegistry) *serverMetrics {
	f := promauto.With(reg)
	return &serverMetrics{
		leases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packpub",
			Subsystem: "gateway",
			Name:      "lease_requests_total",
			Help:      "Lease requests, by result",
		}, []string{"result"}),
		drops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packpub",
			Subsystem: "gateway",
			Name:      "lease_drops_total",
			Help:      "Lease drop requests, by result",
		}, []string{"result"}),
		payloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packpub",
			Subsystem: "gateway",
			Name:      "payloads_total",
			Help:      "Posted payloads, by result",
		}, []string{"result"}),
		payloadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "packpub",
			Subsystem: "gateway",
			Name:      "payload_bytes_total",
			Help:      "Size of the accepted object packs",
		}),
		activeLeases: f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "packpub",
			Subsystem: "gateway",
			Name:      "active_leases",
			Help:      "Leases neither dropped nor expired",
		}, func() float64 {
			n, err := leases.Count()
			if err != nil {
				return -1
			}
			return float64(n)
		}),
	}
}
