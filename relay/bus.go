package relay

import (
	"context"
	"strconv"
	"sync"

	"emperror.dev/errors"
)

var (
	ErrNoSubscribers = errors.NewPlain("no subscribers attached")
	ErrBusClosed     = errors.NewPlain("relay bus closed")
)

// LaggedError is returned once by Subscription.Recv after the subscription fell behind and Count payloads were skipped
type LaggedError struct {
	Count int
}

func (e *LaggedError) Error() string {
	return "subscriber lagged behind, skipped " + strconv.Itoa(e.Count) + " payloads"
}

// Bus fans out payloads to every attached subscription. Each subscription buffers up to capacity payloads,
// past that the oldest ones are skipped and the subscription is told it lagged.
type Bus struct {
	capacity int

	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	attached chan struct{}
	closed   bool
}

func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}

	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
		attached: make(chan struct{}),
	}
}

// Send delivers p to all subscriptions, never blocks
func (b *Bus) Send(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if len(b.subs) == 0 {
		return ErrNoSubscribers
	}

	for s := range b.subs {
		s.push(p)
	}

	return nil
}

// Subscribe attaches a new subscription and wakes everyone waiting on Attached
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	s := &Subscription{
		bus:      b,
		capacity: b.capacity,
		notify:   make(chan struct{}, 1),
	}
	b.subs[s] = struct{}{}
	subscribersGauge.Set(float64(len(b.subs)))

	close(b.attached)
	b.attached = make(chan struct{})

	return s, nil
}

// Attached returns a channel closed the next time a subscription attaches, or when the bus is closed
func (b *Bus) Attached() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close ends every subscription, buffered payloads are still delivered
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for s := range b.subs {
		s.markClosed()
	}
	b.subs = nil
	subscribersGauge.Set(0)

	close(b.attached)
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		return
	}

	delete(b.subs, s)
	subscribersGauge.Set(float64(len(b.subs)))
}

type Subscription struct {
	bus      *Bus
	capacity int

	mu     sync.Mutex
	queue  [][]byte
	lagged int
	closed bool
	notify chan struct{}
}

func (s *Subscription) push(p []byte) {
	s.mu.Lock()
	if len(s.queue) >= s.capacity {
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.lagged++
	}
	s.queue = append(s.queue, p)
	s.mu.Unlock()

	s.wake()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv returns the next payload, a *LaggedError if payloads were skipped since the last call,
// or ErrBusClosed once the bus is closed and the queue is empty
func (s *Subscription) Recv(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if s.lagged > 0 {
			n := s.lagged
			s.lagged = 0
			s.mu.Unlock()
			return nil, &LaggedError{Count: n}
		}

		if len(s.queue) > 0 {
			p := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return p, nil
		}

		if s.closed {
			s.mu.Unlock()
			return nil, ErrBusClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close detaches the subscription from the bus
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
	s.markClosed()
}
