package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bufferedPayloads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dshardrelay_relay_buffered_payloads",
		Help: "Payloads waiting for a subscriber per shard",
	}, []string{"shard"})

	droppedPayloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_relay_dropped_payloads_total",
		Help: "Payloads dropped because the buffer was full",
	}, []string{"shard"})

	laggedPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dshardrelay_relay_lagged_payloads_total",
		Help: "Payloads skipped by slow relay sockets",
	})

	sentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dshardrelay_relay_sent_bytes_total",
		Help: "Bytes written to relay sockets",
	})

	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dshardrelay_relay_subscribers",
		Help: "Attached relay subscriptions",
	})

	workerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_worker_events_total",
		Help: "Events received from the gateway by a worker",
	}, []string{"evt"})
)
