package shard

import (
	"fmt"
	"runtime/debug"

	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/sirupsen/logrus"
)

// Handler receives every event of a shard, it's called from the supervisor loop so it must not block,
// use Dispatch for anything that takes time
type Handler func(d *Dispatcher, evt *gateway.Event)

// Dispatcher runs handler work on goroutines tracked by the shard supervisor, the supervisor waits
// for them before it returns
type Dispatcher struct {
	shard   gateway.ShardID
	tracker *Tracker
	logger  *logrus.Entry
}

func (d *Dispatcher) Shard() gateway.ShardID {
	return d.shard
}

// Dispatch runs fn on a tracked goroutine, errors and panics are logged. Returns false if the
// supervisor is no longer accepting work.
func (d *Dispatcher) Dispatch(name string, fn func() error) bool {
	started := d.tracker.Go(func() {
		handlersInFlight.Inc()
		defer handlersInFlight.Dec()

		defer func() {
			if r := recover(); r != nil {
				handlerErrors.WithLabelValues(name).Inc()
				d.logger.WithField("handler", name).WithField("stack", string(debug.Stack())).
					Error(fmt.Sprintf("recovered from panic in handler: %v", r))
			}
		}()

		if err := fn(); err != nil {
			handlerErrors.WithLabelValues(name).Inc()
			d.logger.WithError(err).WithField("handler", name).Error("handler failed")
		}
	})

	if !started {
		d.logger.WithField("handler", name).Warn("supervisor stopped, dropping handler")
	}

	return started
}
