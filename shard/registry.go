package shard

import (
	"context"
	"sort"
	"sync"

	"emperror.dev/errors"
)

var ErrUnknownShard = errors.NewPlain("unknown shard")

// RestartOutcome is what happened to a restart request made through RestartAndWait
type RestartOutcome int

const (
	OutcomeRestarted RestartOutcome = iota
	OutcomeForced
	OutcomeShutdown
)

func (o RestartOutcome) String() string {
	switch o {
	case OutcomeRestarted:
		return "Shard restarted"
	case OutcomeForced:
		return "Force restarted shard"
	case OutcomeShutdown:
		return "Bot shut down"
	}

	return "Unknown"
}

// Registry keeps the current handle of every shard
type Registry struct {
	mu      sync.RWMutex
	handles map[int]*Handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[int]*Handle),
	}
}

func (r *Registry) set(h *Handle) {
	r.mu.Lock()
	r.handles[h.shard] = h
	r.mu.Unlock()
}

func (r *Registry) Handle(shard int) (*Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[shard]
	r.mu.RUnlock()
	return h, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

func (r *Registry) Shards() []int {
	r.mu.RLock()
	out := make([]int, 0, len(r.handles))
	for k := range r.handles {
		out = append(out, k)
	}
	r.mu.RUnlock()

	sort.Ints(out)
	return out
}

// Restart requests a restart of the current generation of shard
func (r *Registry) Restart(shard int, kind RestartKind) (RestartResult, *Handle, error) {
	h, ok := r.Handle(shard)
	if !ok {
		return 0, nil, errors.WithMessagef(ErrUnknownShard, "shard %d", shard)
	}

	res := h.Restart(kind)
	restartRequests.WithLabelValues(kind.String(), res.String()).Inc()
	return res, h, nil
}

// RestartAndWait requests a restart and waits for it unless it was forced
func (r *Registry) RestartAndWait(ctx context.Context, shard int, kind RestartKind) (RestartOutcome, error) {
	res, h, err := r.Restart(shard, kind)
	if err != nil {
		return 0, err
	}

	if res == RestartForced {
		return OutcomeForced, nil
	}

	err = h.Restarted(ctx)
	if err != nil {
		return 0, err
	}

	// the next generation is registered before the old one is finished
	current, ok := r.Handle(shard)
	if ok && current.Valid() {
		return OutcomeRestarted, nil
	}

	return OutcomeShutdown, nil
}

type ShardStatus struct {
	Shard      int    `json:"shard"`
	Generation int    `json:"generation"`
	State      string `json:"state"`
	Valid      bool   `json:"valid"`
}

func (r *Registry) Status() []*ShardStatus {
	shards := r.Shards()
	out := make([]*ShardStatus, 0, len(shards))
	for _, s := range shards {
		h, ok := r.Handle(s)
		if !ok {
			continue
		}

		out = append(out, &ShardStatus{
			Shard:      s,
			Generation: h.Generation(),
			State:      h.State().String(),
			Valid:      h.Valid(),
		})
	}

	return out
}
