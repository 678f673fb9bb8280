package shard

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/botlabs-gg/dshardrelay/gateway"
)

// RestartKind is the close policy used when restarting a shard
type RestartKind int

const (
	// RestartNormal drops the session, the new connection identifies
	RestartNormal RestartKind = iota
	// RestartResume keeps the session and resumes it on the new connection
	RestartResume
)

func (k RestartKind) CloseCode() gateway.CloseCode {
	if k == RestartResume {
		return gateway.CloseResume
	}

	return gateway.CloseNormal
}

func (k RestartKind) String() string {
	if k == RestartResume {
		return "resume"
	}

	return "normal"
}

type RestartResult int

const (
	// RestartAccepted means this request is the first one for the current generation
	RestartAccepted RestartResult = iota
	// RestartForced means a request was already made for this generation, the new kind replaced it
	// and there is nothing to wait for
	RestartForced
)

func (r RestartResult) String() string {
	if r == RestartForced {
		return "forced"
	}

	return "accepted"
}

// Handle is the restart slot of one shard generation, shared between the supervisor and whoever wants to
// restart the shard. It holds at most one pending kind, newer requests overwrite older ones.
type Handle struct {
	shard      int
	generation int

	mu       sync.Mutex
	kind     RestartKind
	set      bool
	finished bool

	changed chan struct{}
	done    chan struct{}

	state int32
}

func newHandle(shard, generation int) *Handle {
	return &Handle{
		shard:      shard,
		generation: generation,
		changed:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (h *Handle) Shard() int {
	return h.shard
}

// Generation starts at 0 and increases by one for every restart of the shard
func (h *Handle) Generation() int {
	return h.generation
}

// Restart requests a restart of this generation
func (h *Handle) Restart(kind RestartKind) RestartResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := h.set
	h.kind = kind
	h.set = true

	select {
	case h.changed <- struct{}{}:
	default:
	}

	if previous {
		return RestartForced
	}

	return RestartAccepted
}

// Restarted blocks until this generation has ended, either by a restart or by a shutdown.
// Use Valid on the registry's current handle afterwards to tell the two apart.
func (h *Handle) Restarted(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the generation ended
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Valid returns true while this generation is alive
func (h *Handle) Valid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.finished
}

func (h *Handle) State() State {
	return State(atomic.LoadInt32(&h.state))
}

func (h *Handle) setState(s State) {
	atomic.StoreInt32(&h.state, int32(s))
	shardStateGauge.WithLabelValues(shardLabel(h.shard)).Set(float64(s))
}

// pending returns the latest requested kind
func (h *Handle) pending() RestartKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

func (h *Handle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finished {
		return
	}

	h.finished = true
	close(h.done)
}
