package relay

import (
	"context"
	"strconv"
	"sync"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/shard"
	"github.com/sirupsen/logrus"
)

var logger = common.GetFixedPrefixLogger("relay")

// BufferLimit is the default number of payloads a broadcaster holds while nobody is subscribed
const BufferLimit = 1000

// DefaultEventTypes are the events workers get
var DefaultEventTypes = gateway.NewEventTypeFlags(
	gateway.EventTypeInteractionCreate,
	gateway.EventTypeReady,
	gateway.EventTypeGuildRoleCreate,
	gateway.EventTypeGuildRoleDelete,
	gateway.EventTypeGuildRoleUpdate,
)

// Broadcaster publishes one shard's events to the bus, buffering them in order while no subscriber is attached.
// When the buffer is full the oldest payload is dropped.
type Broadcaster struct {
	shard  int
	bus    *Bus
	limit  int
	logger *logrus.Entry

	mu      sync.Mutex
	buffer  [][]byte
	dropped int
}

func NewBroadcaster(shardID int, bus *Bus, limit int) *Broadcaster {
	if limit < 1 {
		limit = BufferLimit
	}

	return &Broadcaster{
		shard:  shardID,
		bus:    bus,
		limit:  limit,
		logger: logger.WithField("shard", shardID),
	}
}

// Publish sends p right away if nothing is buffered and someone is listening, otherwise it's buffered
// behind the payloads already waiting
func (b *Broadcaster) Publish(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) == 0 && b.bus.Send(p) == nil {
		return
	}

	b.push(p)
}

func (b *Broadcaster) push(p []byte) {
	if len(b.buffer) >= b.limit {
		b.buffer[0] = nil
		b.buffer = b.buffer[1:]
		b.dropped++
		droppedPayloads.WithLabelValues(b.label()).Inc()

		if b.dropped == 1 || b.dropped%b.limit == 0 {
			b.logger.Warnf("relay buffer full, dropped %d payloads so far", b.dropped)
		}
	}

	b.buffer = append(b.buffer, p)
	bufferedPayloads.WithLabelValues(b.label()).Set(float64(len(b.buffer)))
}

// Run drains the buffer every time a subscriber attaches, until ctx is done or the bus is closed
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		attached := b.bus.Attached()

		err := b.drain()
		if errors.Is(err, ErrBusClosed) {
			b.logger.Debug("bus closed, stopping broadcaster")
			return
		}

		select {
		case <-attached:
			if b.bus.IsClosed() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// drain sends buffered payloads oldest first, a payload that could not be sent stays at the front
func (b *Broadcaster) drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) == 0 {
		return nil
	}

	sent := 0
	defer func() {
		if sent > 0 {
			b.logger.Infof("drained %d buffered payloads", sent)
		}
		bufferedPayloads.WithLabelValues(b.label()).Set(float64(len(b.buffer)))
	}()

	for len(b.buffer) > 0 {
		if err := b.bus.Send(b.buffer[0]); err != nil {
			return err
		}

		b.buffer[0] = nil
		b.buffer = b.buffer[1:]
		sent++
	}

	b.buffer = nil
	return nil
}

// Buffered returns a copy of the payloads currently waiting
func (b *Broadcaster) Buffered() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.buffer...)
}

func (b *Broadcaster) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Broadcaster) label() string {
	return strconv.Itoa(b.shard)
}

// Handler returns a shard handler feeding the role cache with every event and publishing the ones in filter
func (b *Broadcaster) Handler(filter gateway.EventTypeFlags, roles *RoleCache) shard.Handler {
	return func(d *shard.Dispatcher, evt *gateway.Event) {
		if roles != nil {
			roles.Update(evt)
		}

		if !filter.Contains(evt.Type) {
			return
		}

		frame, err := evt.MarshalFrame()
		if err != nil {
			b.logger.WithError(err).WithField("evt", evt.Type.String()).Error("failed encoding event")
			return
		}

		b.Publish(frame)
	}
}
