package run

import (
	"context"
	"net"
	"time"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/admin"
	"github.com/botlabs-gg/dshardrelay/bot"
	"github.com/botlabs-gg/dshardrelay/bot/eventsystem"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/gateway"
	"github.com/botlabs-gg/dshardrelay/relay"
	"github.com/botlabs-gg/dshardrelay/resume"
	"github.com/botlabs-gg/dshardrelay/shard"
	"github.com/jonas747/discordgo/v2"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = time.Second * 10
	sentryFlushTimeout = time.Second * 2
)

// runShards runs the shards of a standalone or gateway process until ctx is cancelled and returns the exit code
func runShards(ctx context.Context, abort <-chan struct{}, mode Mode) int {
	token := common.ConfBotToken.GetString()
	if token == "" {
		logger.Fatal("No bot token set, set " + common.ConfBotToken.EnvKey())
	}

	shardCount := confShardCount.GetInt()
	if shardCount < 1 {
		var err error
		shardCount, err = gateway.RecommendedShards(token)
		if err != nil {
			logger.WithError(err).Fatal("Failed fetching the recommended shard count")
		}
	}

	store, err := newResumeStore()
	if err != nil {
		logger.WithError(err).Fatal("Failed setting up the resume store")
	}

	seeds := store.Restore(shardCount)
	logger.Infof("Running %d shards", len(seeds))

	if common.RedisPool != nil {
		(&gateway.RedisIdentifyRatelimiter{Pool: common.RedisPool, Buckets: confIdentifyBuckets.GetInt()}).Install()
	}

	// handlers keep running while the shards drain, they're only cut off on abort
	handlerCtx, stopHandlers := context.WithCancel(context.Background())
	defer stopHandlers()

	registry := shard.NewRegistry()
	dialer := &gateway.DiscordDialer{
		Token:    token,
		Intents:  gateway.DefaultIntents,
		LogLevel: discordgo.LogWarning,
	}

	cluster := &shard.Cluster{
		Dial:     dialer.Dial,
		Registry: registry,
	}

	var bg errgroup.Group
	var relayServer *relay.Server
	var bus *relay.Bus
	var roles *relay.RoleCache

	if mode == ModeGateway {
		filter := relay.DefaultEventTypes
		if list := confRelayEventTypes.GetString(); list != "" {
			filter, err = gateway.ParseEventTypeFlags(list)
			if err != nil {
				logger.WithError(err).Fatal("Invalid " + confRelayEventTypes.EnvKey())
			}
		}

		bus = relay.NewBus(confRelayQueueSize.GetInt())
		roles = relay.NewRoleCache(int64(confRoleCacheSize.GetInt()), confRoleCacheTTL.GetDuration())
		relayServer = relay.NewServer(bus, roles)

		l, err := net.Listen("tcp", confRelayListen.GetString())
		if err != nil {
			logger.WithError(err).Fatal("Failed listening for relay subscribers")
		}
		bg.Go(func() error {
			return relayServer.Serve(l)
		})

		limit := confRelayBufferLimit.GetInt()
		cluster.NewHandler = func(id gateway.ShardID) shard.Handler {
			b := relay.NewBroadcaster(id.Number, bus, limit)
			bg.Go(func() error {
				// stops once the bus is closed
				b.Run(context.Background())
				return nil
			})
			return b.Handler(filter, roles)
		}
	} else {
		events := newEventSystem(handlerCtx, nil)
		handler := events.ShardHandler(handlerCtx)
		cluster.NewHandler = func(id gateway.ShardID) shard.Handler {
			return handler
		}
	}

	api := startAdmin(registry)

	done := make(chan []resume.Info, 1)
	go func() {
		done <- cluster.Run(ctx, seeds)
	}()

	code := 0
	select {
	case infos := <-done:
		if err := store.Save(infos); err != nil {
			logger.WithError(err).Error("Failed saving resume info")
			code = 1
		} else {
			logger.Info("Saved resume info")
		}
	case <-abort:
		logger.Warn("Not waiting for shards to close, resume info is not saved")
		code = 1
	}

	if err := store.Close(); err != nil {
		logger.WithError(err).Error("Failed closing the resume store")
	}

	stopHandlers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed shutting down admin api")
		}
	}

	if relayServer != nil {
		if err := relayServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed shutting down relay server")
		}
		bus.Close()
		if err := bg.Wait(); err != nil {
			logger.WithError(err).Error("Relay server failed")
		}
		roles.Stop()
	}

	return code
}

func newResumeStore() (*resume.Store, error) {
	policy, err := resume.ParsePolicy(confResumePolicy.GetString())
	if err != nil {
		return nil, err
	}

	var backend resume.Backend
	switch confResumeBackend.GetString() {
	case "file", "":
		backend = resume.NewFileBackend(confResumeFile.GetString())
	case "buntdb":
		b, err := resume.OpenBuntBackend(confResumeBuntFile.GetString())
		if err != nil {
			return nil, err
		}
		backend = b
	case "redis":
		if common.RedisPool == nil {
			return nil, errors.New("redis resume backend needs " + common.ConfRedis.EnvKey())
		}
		backend = resume.NewRedisBackend(common.RedisPool, "")
	default:
		return nil, errors.Errorf("unknown resume backend %q", confResumeBackend.GetString())
	}

	return resume.NewStore(backend, policy), nil
}

func newEventSystem(ctx context.Context, roles bot.RoleLookup) *eventsystem.System {
	events := eventsystem.New()

	el := eventsystem.NewEventLogger()
	el.Register(events)
	go el.Run(ctx, confEventLogInterval.GetDuration())

	bot.RegisterHandlers(events, roles)
	return events
}

func startAdmin(registry *shard.Registry) *admin.API {
	addr := confAdminListen.GetString()
	if addr == "" {
		return nil
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		logger.WithError(err).Error("Failed listening for the admin api, running without it")
		return nil
	}

	api := admin.NewAPI(registry)
	go func() {
		if err := api.Serve(l); err != nil {
			logger.WithError(err).Error("Admin api failed")
		}
	}()

	return api
}
