package eventsystem

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem() *System {
	s := New()
	s.RetrySleep = time.Millisecond
	return s
}

func emit(s *System, t gateway.EventType) error {
	return s.EmitEvent(NewEventData(context.Background(), 0, &gateway.Event{Type: t, Data: []byte(`{}`)}))
}

func TestHandlerOrderAndFilter(t *testing.T) {
	s := newTestSystem()

	var order []string
	s.AddHandler("first", func(evt *EventData) (bool, error) {
		order = append(order, "first")
		return false, nil
	}, gateway.EventTypeReady)
	s.AddHandler("second", func(evt *EventData) (bool, error) {
		order = append(order, "second")
		return false, nil
	}, gateway.EventTypeReady, gateway.EventTypeGuildCreate)

	require.NoError(t, emit(s, gateway.EventTypeReady))
	assert.Equal(t, []string{"first", "second"}, order)

	order = nil
	require.NoError(t, emit(s, gateway.EventTypeGuildCreate))
	assert.Equal(t, []string{"second"}, order)

	assert.False(t, s.Wants(gateway.EventTypeMessageCreate))
	assert.True(t, s.Wants(gateway.EventTypeGuildCreate))
}

func TestAllEvents(t *testing.T) {
	s := newTestSystem()
	s.AddHandler("all", func(evt *EventData) (bool, error) { return false, nil })

	for _, evt := range gateway.AllEventTypes() {
		assert.True(t, s.Wants(evt), evt.String())
	}
}

func TestCancel(t *testing.T) {
	s := newTestSystem()

	called := false
	s.AddHandler("cancel", func(evt *EventData) (bool, error) {
		evt.Cancel()
		return false, nil
	}, gateway.EventTypeReady)
	s.AddHandler("after", func(evt *EventData) (bool, error) {
		called = true
		return false, nil
	}, gateway.EventTypeReady)

	require.NoError(t, emit(s, gateway.EventTypeReady))
	assert.False(t, called)
}

func TestRetry(t *testing.T) {
	s := newTestSystem()

	var calls int32
	s.AddHandler("flaky", func(evt *EventData) (bool, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return true, errors.New("try again")
		}
		return false, nil
	}, gateway.EventTypeReady)

	require.NoError(t, emit(s, gateway.EventTypeReady))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetryGivesUp(t *testing.T) {
	s := newTestSystem()

	var calls int32
	s.AddHandler("broken", func(evt *EventData) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, errors.New("still broken")
	}, gateway.EventTypeReady)

	err := emit(s, gateway.EventTypeReady)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.EqualValues(t, maxRetries, atomic.LoadInt32(&calls))
}

func TestPanicRecovered(t *testing.T) {
	s := newTestSystem()

	called := false
	s.AddHandler("panics", func(evt *EventData) (bool, error) {
		panic("oh no")
	}, gateway.EventTypeReady)
	s.AddHandler("next", func(evt *EventData) (bool, error) {
		called = true
		return false, nil
	}, gateway.EventTypeReady)

	err := emit(s, gateway.EventTypeReady)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oh no")
	assert.True(t, called)
}

func TestRelayHandler(t *testing.T) {
	s := newTestSystem()

	var got *EventData
	s.AddHandler("roles", func(evt *EventData) (bool, error) {
		got = evt
		return false, nil
	}, gateway.EventTypeGuildRoleCreate)

	h := s.RelayHandler(context.Background())
	require.NoError(t, h(&gateway.Event{Type: gateway.EventTypeReady}))
	assert.Nil(t, got)

	require.NoError(t, h(&gateway.Event{Type: gateway.EventTypeGuildRoleCreate, Data: []byte(`{"guild_id":"1"}`)}))
	require.NotNil(t, got)
	assert.Equal(t, -1, got.Shard)
	assert.Equal(t, `{"guild_id":"1"}`, string(got.Data))
}

func TestEventLogger(t *testing.T) {
	s := newTestSystem()
	el := NewEventLogger()
	el.Register(s)

	require.NoError(t, emit(s, gateway.EventTypeReady))
	require.NoError(t, emit(s, gateway.EventTypeReady))
	require.NoError(t, emit(s, gateway.EventTypeGuildCreate))

	counts := el.Flush()
	assert.Equal(t, 2, counts[gateway.EventTypeReady.String()])
	assert.Equal(t, 1, counts[gateway.EventTypeGuildCreate.String()])
	assert.Equal(t, "GUILD_CREATE=1 READY=2", formatCounts(counts))
	assert.Empty(t, el.Flush())
}
