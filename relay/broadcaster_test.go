package relay

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(from, to int) [][]byte {
	var out [][]byte
	for i := from; i < to; i++ {
		out = append(out, []byte(strconv.Itoa(i)))
	}
	return out
}

func TestBroadcasterSendsDirectly(t *testing.T) {
	bus := NewBus(16)
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	b := NewBroadcaster(0, bus, 10)
	b.Publish([]byte("a"))

	assert.Empty(t, b.Buffered())
	p, err := recvTimeout(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "a", string(p))
}

func TestBroadcasterBufferBound(t *testing.T) {
	const limit = 10
	b := NewBroadcaster(0, NewBus(16), limit)

	for _, p := range payloads(0, limit+5) {
		b.Publish(p)
	}

	assert.Equal(t, payloads(5, limit+5), b.Buffered())
	assert.Equal(t, 5, b.Dropped())
}

func TestBroadcasterDefaultLimit(t *testing.T) {
	b := NewBroadcaster(0, NewBus(1), 0)
	for _, p := range payloads(0, BufferLimit+3) {
		b.Publish(p)
	}

	buffered := b.Buffered()
	require.Len(t, buffered, BufferLimit)
	assert.Equal(t, "3", string(buffered[0]))
}

func TestBroadcasterDrainsInOrder(t *testing.T) {
	bus := NewBus(64)
	b := NewBroadcaster(0, bus, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	// 15 published with nobody listening, the first 5 are dropped
	for _, p := range payloads(0, 15) {
		b.Publish(p)
	}

	sub, err := bus.Subscribe()
	require.NoError(t, err)

	var got []string
	for i := 0; i < 10; i++ {
		p, err := recvTimeout(t, sub)
		require.NoError(t, err)
		got = append(got, string(p))
	}

	var expected []string
	for _, p := range payloads(5, 15) {
		expected = append(expected, string(p))
	}
	assert.Equal(t, expected, got)

	require.Eventually(t, func() bool {
		return len(b.Buffered()) == 0
	}, time.Second, time.Millisecond)

	// new payloads go straight through now
	b.Publish([]byte("15"))
	p, err := recvTimeout(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "15", string(p))

	cancel()
	<-done
}

func TestBroadcasterNoBypassWhileBuffered(t *testing.T) {
	bus := NewBus(64)
	b := NewBroadcaster(0, bus, 10)

	b.Publish([]byte("old"))

	// a subscriber attached but the drain has not run yet
	sub, err := bus.Subscribe()
	require.NoError(t, err)
	b.Publish([]byte("new"))

	assert.Equal(t, [][]byte{[]byte("old"), []byte("new")}, b.Buffered())

	require.NoError(t, b.drain())
	p, _ := recvTimeout(t, sub)
	assert.Equal(t, "old", string(p))
	p, _ = recvTimeout(t, sub)
	assert.Equal(t, "new", string(p))
}

func TestBroadcasterFailedDrainKeepsOrder(t *testing.T) {
	bus := NewBus(64)
	b := NewBroadcaster(0, bus, 10)

	for _, p := range payloads(0, 3) {
		b.Publish(p)
	}

	assert.Equal(t, ErrNoSubscribers, b.drain())
	assert.Equal(t, payloads(0, 3), b.Buffered())
}

func TestBroadcasterStopsOnBusClose(t *testing.T) {
	bus := NewBus(4)
	b := NewBroadcaster(0, bus, 10)

	done := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(done)
	}()

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestBroadcasterHandlerFilters(t *testing.T) {
	bus := NewBus(16)
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	roles := NewRoleCache(100, time.Minute)
	defer roles.Stop()

	b := NewBroadcaster(0, bus, 10)
	h := b.Handler(DefaultEventTypes, roles)

	h(nil, &gateway.Event{Type: gateway.EventTypeGuildCreate, Data: []byte(`{"id":"1","roles":[{"id":"10","name":"everyone"}]}`)})
	h(nil, &gateway.Event{Type: gateway.EventTypeMessageCreate, Data: []byte(`{}`)})
	h(nil, &gateway.Event{Type: gateway.EventTypeInteractionCreate, Data: []byte(`{"id":"5"}`)})

	// guild create is not relayed but still feeds the cache
	_, ok := roles.Role(10)
	assert.True(t, ok)

	p, err := recvTimeout(t, sub)
	require.NoError(t, err)
	evt, err := gateway.ParseFrame(p)
	require.NoError(t, err)
	assert.Equal(t, gateway.EventTypeInteractionCreate, evt.Type)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*10)
	defer cancel()
	_, err = sub.Recv(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
}
