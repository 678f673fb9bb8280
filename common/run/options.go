package run

import (
	"time"

	"github.com/botlabs-gg/dshardrelay/common/config"
	"github.com/botlabs-gg/dshardrelay/relay"
	"github.com/botlabs-gg/dshardrelay/resume"
)

var (
	confSentryDSN = config.RegisterOption("dshardrelay.sentry_dsn", "Sentry credentials for sentry logging hook", "")

	confResumeBackend  = config.RegisterOption("dshardrelay.resume.backend", "Where resume info is kept between restarts, file, buntdb or redis", "file")
	confResumeFile     = config.RegisterOption("dshardrelay.resume.file", "Resume info file used by the file backend", resume.DefaultFileName)
	confResumeBuntFile = config.RegisterOption("dshardrelay.resume.buntdb_file", "Database file used by the buntdb backend", "resume.db")
	confResumePolicy   = config.RegisterOption("dshardrelay.resume.policy", "When stored resume info is used, exact (same shard count) or half (at least half the shards)", "exact")

	confShardCount       = config.RegisterOption("dshardrelay.shard_count", "Override the recommended shard count, 0 asks discord", 0)
	confIdentifyBuckets  = config.RegisterOption("dshardrelay.identify_buckets", "The bots max_concurrency, used by the redis identify ratelimiter", 1)
	confEventLogInterval = config.RegisterOption("dshardrelay.event_log_interval", "How often handled event counts are logged", time.Minute)

	confRelayListen      = config.RegisterOption("dshardrelay.relay.listen_address", "Relay server listen address (gateway mode)", "127.0.0.1:7449")
	confRelayGateway     = config.RegisterOption("dshardrelay.relay.gateway_address", "Address of the gateway's relay server (worker mode)", "127.0.0.1:7449")
	confRelayBufferLimit = config.RegisterOption("dshardrelay.relay.buffer_limit", "Payloads buffered per shard while no worker is attached", relay.BufferLimit)
	confRelayEventTypes  = config.RegisterOption("dshardrelay.relay.event_types", "Comma separated events relayed to workers, empty for the default set", "")
	confRelayQueueSize   = config.RegisterOption("dshardrelay.relay.queue_size", "Payloads queued per worker socket before it lags", 256)

	confRoleCacheSize = config.RegisterOption("dshardrelay.roles.cache_size", "Max number of cached roles", 100000)
	confRoleCacheTTL  = config.RegisterOption("dshardrelay.roles.cache_ttl", "How long a cached role is kept", time.Hour*24)

	confAdminListen = config.RegisterOption("dshardrelay.admin.listen_address", "Admin api listen address, empty to disable", "127.0.0.1:7448")
)
