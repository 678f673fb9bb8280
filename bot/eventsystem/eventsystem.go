package eventsystem

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/shard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var logger = common.GetFixedPrefixLogger("eventsystem")

var (
	handledEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_handled_events_total",
		Help: "Events passed to local handlers",
	}, []string{"evt"})

	handlerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dshardrelay_handler_retries_total",
		Help: "Event handler retries",
	}, []string{"handler"})
)

const maxRetries = 5

// HandlerFunc handles a single event, return retry true to have it called again after a short sleep
type HandlerFunc func(evt *EventData) (retry bool, err error)

type Handler struct {
	Name string
	F    HandlerFunc
}

type EventData struct {
	Type gateway.EventType
	// Shard is -1 for events relayed to a worker
	Shard int
	Data  []byte

	ctx       context.Context
	cancelled *int32
}

func NewEventData(ctx context.Context, shardID int, evt *gateway.Event) *EventData {
	return &EventData{
		Type:      evt.Type,
		Shard:     shardID,
		Data:      evt.Data,
		ctx:       ctx,
		cancelled: new(int32),
	}
}

// Cancel stops the remaining handlers from running
func (e *EventData) Cancel() {
	atomic.StoreInt32(e.cancelled, 1)
}

func (e *EventData) Cancelled() bool {
	return atomic.LoadInt32(e.cancelled) != 0
}

func (e *EventData) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}

	return e.ctx
}

// System routes events to the handlers registered for their type
type System struct {
	mu       sync.RWMutex
	handlers [][]*Handler

	// RetrySleep is the first sleep between retries, doubled every retry
	RetrySleep time.Duration
}

func New() *System {
	return &System{
		handlers:   make([][]*Handler, len(gateway.AllEventTypes())),
		RetrySleep: time.Millisecond * 500,
	}
}

// AddHandler registers f for evts, or every event type if none are passed. Handlers run in the order they were added.
func (s *System) AddHandler(name string, f HandlerFunc, evts ...gateway.EventType) {
	if len(evts) == 0 {
		evts = gateway.AllEventTypes()
	}

	h := &Handler{Name: name, F: f}

	s.mu.Lock()
	for _, evt := range evts {
		if !s.valid(evt) {
			panic("eventsystem: unknown event type " + evt.String())
		}
		s.handlers[evt] = append(s.handlers[evt], h)
	}
	s.mu.Unlock()
}

// Wants returns true if anything is registered for t
func (s *System) Wants(t gateway.EventType) bool {
	if !s.valid(t) {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[t]) > 0
}

// EmitEvent runs all the handlers for the event, errors from every handler are returned combined
func (s *System) EmitEvent(data *EventData) error {
	if !s.valid(data.Type) {
		return errors.WithMessagef(gateway.ErrUnknownEvent, "type %d", int(data.Type))
	}

	s.mu.RLock()
	handlers := s.handlers[data.Type]
	s.mu.RUnlock()

	handledEvents.WithLabelValues(data.Type.String()).Inc()

	var errs []error
	for _, h := range handlers {
		if data.Cancelled() {
			break
		}

		if err := s.runHandler(h, data); err != nil {
			errs = append(errs, errors.WithMessage(err, h.Name))
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}

	return errors.Errorf("%d handlers failed, first: %v", len(errs), errs[0])
}

func (s *System) runHandler(h *Handler, data *EventData) (err error) {
	sleep := s.RetrySleep
	for i := 0; ; i++ {
		var retry bool
		retry, err = callHandler(h, data)
		if !retry || i >= maxRetries-1 || data.Cancelled() {
			return err
		}

		handlerRetries.WithLabelValues(h.Name).Inc()
		logger.WithError(err).WithField("evt", data.Type.String()).Warnf("%s: retrying event handler (%d)", h.Name, i+1)

		select {
		case <-time.After(sleep):
		case <-data.Context().Done():
			return data.Context().Err()
		}

		sleep *= 2
	}
}

func (s *System) valid(t gateway.EventType) bool {
	return t >= 0 && int(t) < len(s.handlers)
}

func callHandler(h *Handler, data *EventData) (retry bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			logger.WithField("evt", data.Type.String()).Error("Recovered from panic in event handler\n" + stack)
			retry = false
			err = errors.Errorf("panic: %v", r)
		}
	}()

	return h.F(data)
}

// ShardHandler returns a handler for a shard supervisor running the wanted events on tracked goroutines
func (s *System) ShardHandler(ctx context.Context) shard.Handler {
	return func(d *shard.Dispatcher, evt *gateway.Event) {
		if !s.Wants(evt.Type) {
			return
		}

		data := NewEventData(ctx, d.Shard().Number, evt)
		d.Dispatch("eventsystem:"+evt.Type.String(), func() error {
			return s.EmitEvent(data)
		})
	}
}

// RelayHandler returns a handler for events received by a worker
func (s *System) RelayHandler(ctx context.Context) func(evt *gateway.Event) error {
	return func(evt *gateway.Event) error {
		if !s.Wants(evt.Type) {
			return nil
		}

		return s.EmitEvent(NewEventData(ctx, -1, evt))
	}
}
