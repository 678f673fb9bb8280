package resume

import (
	"emperror.dev/errors"
	"github.com/mediocregopher/radix/v3"
	"github.com/vmihailenco/msgpack"
)

const DefaultRedisKey = "dshardrelay_resume_info"

// RedisBackend stores the msgpack encoded record under a single key
type RedisBackend struct {
	Pool radix.Client
	Key  string
}

func NewRedisBackend(pool radix.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisBackend{Pool: pool, Key: key}
}

func (r *RedisBackend) Load() ([]Info, error) {
	var data []byte
	mn := radix.MaybeNil{Rcv: &data}
	err := r.Pool.Do(radix.Cmd(&mn, "GET", r.Key))
	if err != nil {
		return nil, errors.WithMessage(err, "redis get")
	}

	if mn.Nil {
		return nil, ErrNoRecord
	}

	var infos []Info
	err = msgpack.Unmarshal(data, &infos)
	if err != nil {
		return nil, errors.WithMessage(err, "msgpack unmarshal")
	}

	return infos, nil
}

func (r *RedisBackend) Save(infos []Info) error {
	data, err := msgpack.Marshal(infos)
	if err != nil {
		return errors.WithMessage(err, "msgpack marshal")
	}

	err = r.Pool.Do(radix.FlatCmd(nil, "SET", r.Key, data))
	return errors.WithMessage(err, "redis set")
}

func (r *RedisBackend) Delete() error {
	err := r.Pool.Do(radix.Cmd(nil, "DEL", r.Key))
	return errors.WithMessage(err, "redis del")
}
