package gateway

import (
	"strconv"
	"time"

	"github.com/jonas747/discordgo/v2"
	"github.com/mediocregopher/radix/v3"
)

const identifyKey = "dshardrelay_identify_lock"

// RedisIdentifyRatelimiter makes sure only one identify is sent every 5 seconds across all processes
// sharing a redis instance, discord only allows max_concurrency identifies per 5 seconds
type RedisIdentifyRatelimiter struct {
	Pool radix.Client

	// Buckets is the bots max_concurrency, shards in different buckets can identify in parallel
	Buckets int
}

var _ discordgo.GatewayIdentifyRatelimiter = (*RedisIdentifyRatelimiter)(nil)

// Install makes every discordgo session in this process use rl
func (rl *RedisIdentifyRatelimiter) Install() {
	discordgo.IdentifyRatelimiter = rl
}

func (rl *RedisIdentifyRatelimiter) RatelimitIdentify(shardID int) {
	key := rl.key(shardID)
	for {
		ok, err := rl.tryAcquire(key)
		if err != nil {
			logger.WithError(err).WithField("shard", shardID).Error("failed acquiring identify lock, identifying anyways")
			return
		}

		if ok {
			return
		}

		time.Sleep(time.Millisecond * 250)
	}
}

func (rl *RedisIdentifyRatelimiter) key(shardID int) string {
	if rl.Buckets <= 1 {
		return identifyKey
	}

	return identifyKey + ":" + strconv.Itoa(shardID%rl.Buckets)
}

func (rl *RedisIdentifyRatelimiter) tryAcquire(key string) (bool, error) {
	var resp string
	mn := radix.MaybeNil{Rcv: &resp}
	err := rl.Pool.Do(radix.Cmd(&mn, "SET", key, "1", "EX", "5", "NX"))
	if err != nil {
		return false, err
	}

	return !mn.Nil, nil
}
