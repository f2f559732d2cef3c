package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is a single rate limit decision.
type Event struct {
	Key     string
	Allowed bool
	Method  string
	Path    string // route pattern, not the raw URL
	At      time.Time
}

// StatsRecorder persists rate limit decisions. Failures must not fail the request.
type StatsRecorder interface {
	Record(ctx context.Context, ev Event) error
}

// RedisStats counts decisions in redis hashes: a cumulative total, per-minute buckets and per-route counters.
type RedisStats struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ StatsRecorder = (*RedisStats)(nil)

func NewRedisStats(rdb redis.UniversalClient, prefix string) *RedisStats {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit:stats"
	}
	return &RedisStats{rdb: rdb, prefix: prefix, ttl: 24 * time.Hour}
}

func (s *RedisStats) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	pipe.Expire(ctx, bucketKey, s.ttl)

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}
