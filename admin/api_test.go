package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/botlabs-gg/dshardrelay/shard"
	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	common.Testing = true
}

type testConn struct {
	id   gateway.ShardID
	msgs chan gateway.Message
	once sync.Once
}

func (c *testConn) ShardID() gateway.ShardID         { return c.id }
func (c *testConn) Messages() <-chan gateway.Message { return c.msgs }
func (c *testConn) ResumeInfo() resume.Info          { return resume.Info{} }
func (c *testConn) Close(code gateway.CloseCode) {
	c.once.Do(func() {
		c.msgs <- gateway.Message{Closed: true}
		close(c.msgs)
	})
}

func dial(ctx context.Context, id gateway.ShardID, info resume.Info) (gateway.Conn, error) {
	return &testConn{id: id, msgs: make(chan gateway.Message, 1)}, nil
}

// heldConn doesn't confirm a close until release is closed
type heldConn struct {
	testConn
	release chan struct{}
}

func (c *heldConn) Close(code gateway.CloseCode) {
	c.once.Do(func() {
		go func() {
			<-c.release
			c.msgs <- gateway.Message{Closed: true}
			close(c.msgs)
		}()
	})
}

func startAPI(t *testing.T, limiter *rate.Limiter) (*Client, *shard.Registry) {
	return startAPIWithDial(t, limiter, dial)
}

func startAPIWithDial(t *testing.T, limiter *rate.Limiter, dial gateway.DialFunc) (*Client, *shard.Registry) {
	registry := shard.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	id := gateway.ShardID{Number: 0, Total: 1}
	sup := shard.NewSupervisor(id, dial, func(d *shard.Dispatcher, evt *gateway.Event) {}, registry)
	sup.Backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	conn, _ := dial(ctx, id, resume.Info{})
	done := make(chan struct{})
	go func() {
		sup.Run(ctx, conn)
		close(done)
	}()

	require.Eventually(t, func() bool { return registry.Len() == 1 }, time.Second, time.Millisecond)

	api := NewAPI(registry)
	if limiter != nil {
		api.RestartLimiter = limiter
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return NewClient(srv.URL), registry
}

func TestStatus(t *testing.T) {
	client, _ := startAPI(t, nil)

	status, err := client.GetStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, status.Shards, 1)
	assert.Equal(t, 0, status.Shards[0].Shard)
	assert.Equal(t, "active", status.Shards[0].State)
	assert.True(t, status.Shards[0].Valid)
}

func TestRestartShard(t *testing.T) {
	client, registry := startAPI(t, nil)

	msg, err := client.RestartShard(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, shard.OutcomeRestarted.String(), msg)

	h, ok := registry.Handle(0)
	require.True(t, ok)
	assert.Equal(t, 1, h.Generation())
}

func TestRestartUnknownShard(t *testing.T) {
	client, _ := startAPI(t, nil)

	_, err := client.RestartShard(context.Background(), 7, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown shard")
}

func TestRestartBadForm(t *testing.T) {
	registry := shard.NewRegistry()
	srv := httptest.NewServer(NewAPI(registry).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/restartshard", "application/x-www-form-urlencoded", strings.NewReader("shard=abc"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewAPI(shard.NewRegistry()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRestartRateLimited(t *testing.T) {
	client, _ := startAPI(t, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := client.RestartShard(context.Background(), 0, true)
	require.NoError(t, err)

	_, err = client.RestartShard(context.Background(), 0, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many")
}

func TestRestartTimeoutPending(t *testing.T) {
	old := RestartTimeout
	RestartTimeout = 20 * time.Millisecond
	defer func() { RestartTimeout = old }()

	release := make(chan struct{})
	var dialed int32
	client, registry := startAPIWithDial(t, nil, func(ctx context.Context, id gateway.ShardID, info resume.Info) (gateway.Conn, error) {
		if atomic.AddInt32(&dialed, 1) == 1 {
			return &heldConn{testConn: testConn{id: id, msgs: make(chan gateway.Message, 1)}, release: release}, nil
		}
		return dial(ctx, id, info)
	})
	// runs before the registered shutdown
	t.Cleanup(func() { close(release) })

	_, err := client.RestartShard(context.Background(), 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrRestartPending.Error())
	assert.NotContains(t, err.Error(), "deadline")

	statuses := registry.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "restarting", statuses[0].State)
}
