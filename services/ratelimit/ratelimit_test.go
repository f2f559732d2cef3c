package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(rps float64, burst int) (*Store, *clock) {
	c := &clock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	s := NewStore(rps, burst, time.Minute)
	s.now = c.now
	return s, c
}

func TestStore_Allow(t *testing.T) {
	s, c := newTestStore(1, 2)

	for i := 0; i < 2; i++ {
		ok, _ := s.Allow("10.0.0.1")
		assert.True(t, ok, "burst request %d", i)
	}
	ok, retry := s.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	ok, _ = s.Allow("10.0.0.2")
	assert.True(t, ok, "other keys have their own bucket")

	c.advance(time.Second)
	ok, _ = s.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = s.Allow("10.0.0.1")
	assert.False(t, ok, "denied requests do not consume tokens")
}

func TestStore_Cleanup(t *testing.T) {
	s, c := newTestStore(1, 1)
	s.Allow("a")
	c.advance(30 * time.Second)
	s.Allow("b")
	assert.Equal(t, 2, s.Len())

	c.advance(45 * time.Second)
	s.Cleanup()
	assert.Equal(t, 1, s.Len())

	c.advance(time.Minute + time.Second)
	s.Cleanup()
	assert.Zero(t, s.Len())
}

func TestStore_StartJanitor(t *testing.T) {
	s := NewStore(1, 1, time.Millisecond, WithCleanupEvery(5*time.Millisecond))
	s.Allow("a")
	require.Equal(t, 1, s.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryAfterSeconds(tt.d), tt.d.String())
	}
}

func TestRedisStats_Record(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	prefix := "proofmate:test:ratelimit:" + time.Now().Format("150405.000000")
	stats := NewRedisStats(rdb, prefix+":")
	at := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	defer rdb.Del(ctx, prefix+":total", prefix+":route", prefix+":minute:202403101230")

	require.NoError(t, stats.Record(ctx, Event{Key: "1.2.3.4", Allowed: true, Method: "POST", Path: "/api/auth/login", At: at}))
	require.NoError(t, stats.Record(ctx, Event{Key: "1.2.3.4", Allowed: false, Method: "POST", Path: "/api/auth/login", At: at}))

	total, err := rdb.HGetAll(ctx, prefix+":total").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"allowed": "1", "denied": "1"}, total)

	route, err := rdb.HGet(ctx, prefix+":route", "POST /api/auth/login:denied").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", route)

	ttl, err := rdb.TTL(ctx, prefix+":minute:202403101230").Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0)
}
