package shard

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	restartRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_shard_restart_requests_total",
		Help: "Restart requests by kind and result",
	}, []string{"kind", "result"})

	generationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_shard_generations_total",
		Help: "Gateway connections started per shard",
	}, []string{"shard"})

	shardStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dshardrelay_shard_state",
		Help: "Supervisor state per shard, 0 active, 1 restarting, 2 shutting down",
	}, []string{"shard"})

	handlersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dshardrelay_handlers_in_flight",
		Help: "Dispatched event handlers currently running",
	})

	handlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_handler_errors_total",
		Help: "Dispatched event handlers that returned an error or panicked",
	}, []string{"handler"})
)

func shardLabel(shard int) string {
	return strconv.Itoa(shard)
}
