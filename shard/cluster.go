package shard

import (
	"context"

	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
)

// Cluster runs a supervisor for every shard of the process
type Cluster struct {
	Dial     gateway.DialFunc
	Registry *Registry

	// NewHandler returns the event handler for a shard
	NewHandler func(shard gateway.ShardID) Handler

	Backoff func() backoff.BackOff
}

// Run starts one shard per seed, seeds[i] being the session to resume for shard i, and blocks until ctx is
// cancelled and every shard stopped. The returned infos are in shard order.
func (c *Cluster) Run(ctx context.Context, seeds []resume.Info) []resume.Info {
	results := make([]resume.Info, len(seeds))

	var g errgroup.Group
	for i := range seeds {
		i := i
		g.Go(func() error {
			results[i] = c.runShard(ctx, gateway.ShardID{Number: i, Total: len(seeds)}, seeds[i])
			return nil
		})
	}

	g.Wait()
	return results
}

func (c *Cluster) runShard(ctx context.Context, id gateway.ShardID, seed resume.Info) resume.Info {
	sup := NewSupervisor(id, c.Dial, c.NewHandler(id), c.Registry)
	sup.Backoff = c.Backoff

	l := logger.WithField("shard", id.Number)
	conn, err := dialWithBackoff(ctx, c.Dial, id, seed, sup.newBackoff(), l)
	if err != nil {
		// never connected, the seed is still the best session we have
		l.WithError(err).Warn("shutdown before the shard connected")
		return seed
	}

	return sup.Run(ctx, conn)
}
