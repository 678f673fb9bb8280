package config

import (
	"strings"

	"github.com/mediocregopher/radix/v3"
	"github.com/sirupsen/logrus"
)

const (
	redisConfigKey    = "dshardrelay_config"
	redisConfigPrefix = "dshardrelay."
)

// RedisConfigStore reads overrides from the dshardrelay_config hash, the field name is the option name
// without the dshardrelay. prefix
type RedisConfigStore struct {
	Pool radix.Client
}

func (rs *RedisConfigStore) GetValue(key string) interface{} {
	prefixStripped := strings.TrimPrefix(key, redisConfigPrefix)

	var v string
	err := rs.Pool.Do(radix.Cmd(&v, "HGET", redisConfigKey, prefixStripped))
	if err != nil {
		logrus.WithError(err).Error("[redis_config_source] failed retrieving value")
		return nil
	}

	if v == "" {
		return nil
	}

	return v
}

func (rs *RedisConfigStore) SaveValue(key, value string) error {
	prefixStripped := strings.TrimPrefix(key, redisConfigPrefix)
	return rs.Pool.Do(radix.Cmd(nil, "HSET", redisConfigKey, prefixStripped, value))
}

func (rs *RedisConfigStore) Name() string {
	return "redis"
}
