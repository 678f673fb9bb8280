package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/cenkalti/backoff"
)

type fakeConn struct {
	id   gateway.ShardID
	msgs chan gateway.Message

	mu        sync.Mutex
	info      resume.Info
	confirm   bool
	closes    []gateway.CloseCode
	drop      bool
	closeOnce sync.Once
}

func newFakeConn(id gateway.ShardID, info resume.Info) *fakeConn {
	return &fakeConn{
		id:      id,
		msgs:    make(chan gateway.Message, 100),
		info:    info,
		confirm: true,
	}
}

func (f *fakeConn) ShardID() gateway.ShardID {
	return f.id
}

func (f *fakeConn) Messages() <-chan gateway.Message {
	return f.msgs
}

func (f *fakeConn) Close(code gateway.CloseCode) {
	f.mu.Lock()
	f.closes = append(f.closes, code)
	if code == gateway.CloseNormal {
		f.drop = true
	}
	confirm := f.confirm
	f.mu.Unlock()

	if confirm {
		f.finish()
	}
}

// finish delivers the close confirmation, a normal close only drops the session at this point
func (f *fakeConn) finish() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		if f.drop {
			f.info = resume.Info{}
		}
		f.mu.Unlock()

		f.msgs <- gateway.Message{Closed: true}
		close(f.msgs)
	})
}

func (f *fakeConn) ResumeInfo() resume.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

func (f *fakeConn) Closes() []gateway.CloseCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.CloseCode(nil), f.closes...)
}

func (f *fakeConn) send(t gateway.EventType) {
	f.msgs <- gateway.Message{Event: &gateway.Event{Type: t, Data: []byte(`{}`)}}
}

type fakeDialer struct {
	mu         sync.Mutex
	conns      []*fakeConn
	infos      []resume.Info
	failures   int
	alwaysFail bool
	dialed     chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, shard gateway.ShardID, info resume.Info) (gateway.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.alwaysFail || d.failures > 0 {
		d.failures--
		return nil, errors.New("dial failed")
	}

	d.infos = append(d.infos, info)

	session := info
	if session.IsEmpty() {
		session = sessionInfo(fmt.Sprintf("s%d-%d", shard.Number, len(d.conns)))
	}

	c := newFakeConn(shard, session)
	d.conns = append(d.conns, c)
	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) Infos() []resume.Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]resume.Info(nil), d.infos...)
}

func sessionInfo(id string) resume.Info {
	return resume.Info{
		ResumeURL: "wss://resume.gateway",
		Session:   &resume.Session{ID: id, Sequence: 5},
	}
}

func fastBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func noopHandler(d *Dispatcher, evt *gateway.Event) {}
