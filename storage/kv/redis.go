package kvstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/proofmate/core"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // prepended to every key, eg: "proofmate:"
}

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ core.KVStore = (*redisStore)(nil)

// OpenRedis connects to redis and checks the connection.
func OpenRedis(opts RedisOptions) (core.KVStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "pinging redis at %s", opts.Addr)
	}
	return NewRedisStore(rdb, opts.Prefix), nil
}

func NewRedisStore(rdb *redis.Client, prefix string) core.KVStore {
	return &redisStore{rdb: rdb, prefix: prefix}
}

func (s *redisStore) key(k string) string { return s.prefix + k }

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, core.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis GET %s", key)
	}
	return val, nil
}

func (s *redisStore) Set(ctx context.Context, key string, val []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), val, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis SET %s", key)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, s.key(k))
	}
	if err := s.rdb.Del(ctx, prefixed...).Err(); err != nil {
		return errors.Wrap(err, "redis DEL")
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "redis SCAN")
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) Close() error { return s.rdb.Close() }
