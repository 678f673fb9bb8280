package shard

import (
	"context"
	"time"

	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

var logger = common.GetFixedPrefixLogger("shard")

type State int32

const (
	StateActive State = iota
	StateRestarting
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRestarting:
		return "restarting"
	case StateShuttingDown:
		return "shutting_down"
	}

	return "unknown"
}

// DefaultBackoff is used between failed dials, it never gives up on its own, cancel the context instead
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Supervisor drives the connections of a single shard through restarts and shutdown
type Supervisor struct {
	Shard    gateway.ShardID
	Dial     gateway.DialFunc
	Handler  Handler
	Registry *Registry

	// Backoff creates the policy used between failed dials, defaults to DefaultBackoff
	Backoff func() backoff.BackOff

	tracker *Tracker
	logger  *logrus.Entry
}

func NewSupervisor(shard gateway.ShardID, dial gateway.DialFunc, handler Handler, registry *Registry) *Supervisor {
	return &Supervisor{
		Shard:    shard,
		Dial:     dial,
		Handler:  handler,
		Registry: registry,
	}
}

// Run supervises conn and every connection replacing it after a restart, until ctx is cancelled.
// It then closes the current connection keeping the session, waits for all dispatched handlers and returns
// the session to resume next time.
func (s *Supervisor) Run(ctx context.Context, conn gateway.Conn) resume.Info {
	s.tracker = &Tracker{}
	s.logger = logger.WithField("shard", s.Shard.Number)
	dispatcher := &Dispatcher{
		shard:   s.Shard,
		tracker: s.tracker,
		logger:  s.logger,
	}

	handle := newHandle(s.Shard.Number, 0)
	s.Registry.set(handle)
	generationsStarted.WithLabelValues(shardLabel(s.Shard.Number)).Inc()

	var info resume.Info
	for {
		state, sent := s.runGeneration(ctx, conn, handle, dispatcher)
		info = conn.ResumeInfo()

		if state != StateRestarting {
			break
		}

		// after an escalation the normal close may still be in flight with the session not yet dropped
		if sent == RestartNormal || handle.pending() == RestartNormal {
			info = resume.Info{}
		}

		next := newHandle(s.Shard.Number, handle.generation+1)
		s.Registry.set(next)
		handle.finish()
		handle = next

		s.logger.WithField("resuming", !info.IsEmpty()).Info("restarting shard")

		var err error
		conn, err = s.redial(ctx, info)
		if err != nil {
			s.logger.WithError(err).Info("gave up reconnecting, shutting down")
			handle.setState(StateShuttingDown)
			break
		}

		generationsStarted.WithLabelValues(shardLabel(s.Shard.Number)).Inc()
	}

	s.logger.WithField("tasks", s.tracker.Len()).Info("waiting for handlers to finish")
	s.tracker.Close()
	s.tracker.Wait()
	handle.finish()

	s.logger.Info("shard stopped")
	return info
}

// runGeneration runs the event loop for one connection and returns the state it ended in,
// StateRestarting means a new connection should replace it and sent is the kind of the close that was sent
func (s *Supervisor) runGeneration(ctx context.Context, conn gateway.Conn, h *Handle, d *Dispatcher) (state State, sent RestartKind) {
	state = StateActive
	h.setState(state)

	shutdown := ctx.Done()
	restart := h.changed
	messages := conn.Messages()

	for {
		select {
		case <-shutdown:
			shutdown = nil
			restart = nil

			if state == StateActive {
				conn.Close(gateway.CloseResume)
			}

			state = StateShuttingDown
			h.setState(state)

		case <-restart:
			kind := h.pending()

			if state == StateRestarting {
				// asked again while waiting for the close, don't wait for it any longer
				s.logger.WithField("kind", kind).Warn("restart requested while already restarting, not waiting for close")
				go drainAbandoned(messages)
				return state, sent
			}

			s.logger.WithField("kind", kind).Info("restart requested, closing connection")
			conn.Close(kind.CloseCode())
			sent = kind
			state = StateRestarting
			h.setState(state)

		case m, ok := <-messages:
			if !ok {
				return state, sent
			}

			switch {
			case m.Closed:
				if state == StateActive {
					// closed from the other side, the connection reconnects on its own
					s.logger.Warn("connection closed while active")
					continue
				}
				return state, sent

			case m.Err != nil:
				s.logger.WithError(m.Err).Error("error receiving from gateway")

			case m.Event != nil:
				s.Handler(d, m.Event)
			}
		}
	}
}

func (s *Supervisor) redial(ctx context.Context, info resume.Info) (gateway.Conn, error) {
	return dialWithBackoff(ctx, s.Dial, s.Shard, info, s.newBackoff(), s.logger)
}

func (s *Supervisor) newBackoff() backoff.BackOff {
	if s.Backoff != nil {
		return s.Backoff()
	}

	return DefaultBackoff()
}

func dialWithBackoff(ctx context.Context, dial gateway.DialFunc, shard gateway.ShardID, info resume.Info, b backoff.BackOff, l *logrus.Entry) (gateway.Conn, error) {
	var conn gateway.Conn
	op := func() error {
		c, err := dial(ctx, shard, info)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		conn = c
		return nil
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		l.WithError(err).Warnf("failed connecting to the gateway, retrying in %s", next)
	})

	return conn, err
}

// drainAbandoned reads an escalated connection until it's closed so it never blocks on its close confirmation
func drainAbandoned(messages <-chan gateway.Message) {
	for range messages {
	}
}
