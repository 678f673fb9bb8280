package relay

import (
	"context"
	"net/url"
	"time"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/shard"
	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

// closeWait is how long a worker waits for the gateway to answer its close frame
const closeWait = time.Second * 5

// EventHandler handles a single event received by a worker
type EventHandler func(evt *gateway.Event) error

// Subscriber is the worker side of the relay, it streams events from a gateway process to a local handler
type Subscriber struct {
	// Addr is the host:port of the gateway's relay server
	Addr    string
	Handler EventHandler
	Dialer  *websocket.Dialer

	// Backoff between connection attempts, defaults to shard.DefaultBackoff
	Backoff func() backoff.BackOff
}

func (s *Subscriber) URL() string {
	u := url.URL{Scheme: "ws", Host: s.Addr, Path: "/events"}
	return u.String()
}

// Run keeps a relay socket open until ctx is done, reconnecting if the gateway goes away.
// On ctx done it closes the socket, reads until the gateway closes its side and waits for running handlers.
func (s *Subscriber) Run(ctx context.Context) error {
	tracker := &shard.Tracker{}
	defer func() {
		tracker.Close()
		tracker.Wait()
	}()

	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.stream(ctx, conn, tracker)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		logger.Warn("relay socket closed by the gateway, reconnecting")
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	b := shard.DefaultBackoff()
	if s.Backoff != nil {
		b = s.Backoff()
	}

	var conn *websocket.Conn
	op := func() error {
		c, _, err := dialer.DialContext(ctx, s.URL(), nil)
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
		logger.WithError(err).Warnf("failed connecting to %s, retrying in %s", s.URL(), next)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "relay dial")
	}

	logger.Infof("connected to relay at %s", s.URL())
	return conn, nil
}

func (s *Subscriber) stream(ctx context.Context, conn *websocket.Conn, tracker *shard.Tracker) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("closing relay socket")
			writeClose(conn, websocket.CloseNormalClosure, "")
			conn.SetReadDeadline(time.Now().Add(closeWait))
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.WithError(err).Error("failed reading from relay socket")
			}
			return
		}

		evt, err := gateway.ParseFrame(data)
		if err != nil {
			logger.WithError(err).Error("failed parsing relayed event")
			continue
		}

		workerEvents.WithLabelValues(evt.Type.String()).Inc()
		tracker.Go(func() {
			if err := s.Handler(evt); err != nil {
				logger.WithError(err).WithField("evt", evt.Type.String()).Error("failed handling relayed event")
			}
		})
	}
}
