// Package kvstore holds the key-value backends persisting the assignment store.
package kvstore

import (
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
)

// New opens the key-value store selected by the configuration.
func New(conf *core.Config) (core.KVStore, error) {
	switch conf.Store.Backend {
	case core.BackendMemory, "":
		return NewMemoryStore(), nil
	case core.BackendBolt:
		return OpenBolt(conf.Store.BoltPath)
	case core.BackendRedis:
		return OpenRedis(RedisOptions{
			Addr:     conf.Store.RedisAddr,
			Password: conf.Store.RedisPassword,
			DB:       conf.Store.RedisDB,
			Prefix:   conf.Store.KeyPrefix,
		})
	}
	return nil, errors.Errorf("unknown store backend: %q", conf.Store.Backend)
}
