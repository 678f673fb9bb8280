package common

import (
	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common/config"
	"github.com/mediocregopher/radix/v3"
	"github.com/sirupsen/logrus"
)

const VERSION = "1.3.0"

var (
	// RedisPool is nil unless dshardrelay.redis is configured
	RedisPool radix.Client

	// Set by tests, changes the log formatting a bit
	Testing bool

	logger = GetFixedPrefixLogger("common")
)

var (
	ConfBotToken      = config.RegisterOption("dshardrelay.bot_token", "Discord bot token, required by the standalone and gateway modes", "")
	ConfRedis         = config.RegisterOption("dshardrelay.redis", "Redis address, leave empty to run without redis", "")
	ConfRedisPoolSize = config.RegisterOption("dshardrelay.redis_pool_size", "Max number of redis connections", 10)
	ConfRedisConfig   = config.RegisterOption("dshardrelay.redis_config", "Also load config overrides from the dshardrelay_config hash in redis", false)
)

// CoreInit loads the config and connects to redis if configured
func CoreInit() error {
	config.AddSource(&config.EnvSource{})
	config.Load()

	if ConfRedis.GetString() == "" {
		logger.Info("No redis address configured, redis backed features are disabled")
		return nil
	}

	err := connectRedis(ConfRedis.GetString(), ConfRedisPoolSize.GetInt())
	if err != nil {
		return err
	}

	if ConfRedisConfig.GetBool() {
		config.AddSource(&config.RedisConfigStore{Pool: RedisPool})
		config.Load()
	}

	return nil
}

func connectRedis(addr string, size int) error {
	logger.Infof("Connecting to redis at %s (pool size %d)", addr, size)

	pool, err := radix.NewPool("tcp", addr, size)
	if err != nil {
		return errors.WithMessage(err, "redis")
	}

	RedisPool = pool
	return nil
}

// Shutdown closes shared resources, safe to call when CoreInit never connected anything
func Shutdown() {
	if RedisPool == nil {
		return
	}

	if err := RedisPool.Close(); err != nil {
		logger.WithError(err).Error("failed closing redis pool")
	}
}

// GetFixedPrefixLogger returns a logger with the p field set, sorted right after the level by the formatter
func GetFixedPrefixLogger(prefix string) *logrus.Entry {
	return logrus.WithField("p", prefix)
}

func AddLogHook(hook logrus.Hook) {
	logrus.AddHook(hook)
}

func SetLogFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}
