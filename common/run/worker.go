package run

import (
	"context"

	"github.com/botlabs-gg/dshardrelay/relay"
)

// runWorker handles events relayed from a gateway until ctx is cancelled and returns the exit code
func runWorker(ctx context.Context, abort <-chan struct{}) int {
	handlerCtx, stopHandlers := context.WithCancel(context.Background())
	defer stopHandlers()

	addr := confRelayGateway.GetString()
	events := newEventSystem(handlerCtx, relay.NewRoleClient(addr))

	sub := &relay.Subscriber{
		Addr:    addr,
		Handler: events.RelayHandler(handlerCtx),
	}

	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Relay subscriber failed")
			return 1
		}
	case <-abort:
		logger.Warn("Not waiting for event handlers")
		return 1
	}

	return 0
}
