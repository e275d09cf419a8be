package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "01012345678"

func setupTestRedis(t *testing.T) (*SendThrottle, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	throttle := NewSendThrottle(client).WithClock(func() time.Time { return now })
	return throttle, mr, &now
}

func allow(t *testing.T, th *SendThrottle, phone string) bool {
	t.Helper()
	ok, err := th.Allow(context.Background(), phone, 3, time.Minute)
	require.NoError(t, err)
	return ok
}

func TestSendThrottle_AllowsUpToLimit(t *testing.T) {
	throttle, _, _ := setupTestRedis(t)

	for i := 0; i < 3; i++ {
		assert.True(t, allow(t, throttle, testPhone), "request %d should pass", i+1)
	}
	assert.False(t, allow(t, throttle, testPhone), "4th request within the window must be rejected")
}

func TestSendThrottle_SlidingWindow(t *testing.T) {
	throttle, _, now := setupTestRedis(t)

	require.True(t, allow(t, throttle, testPhone))
	*now = now.Add(30 * time.Second)
	require.True(t, allow(t, throttle, testPhone))
	require.True(t, allow(t, throttle, testPhone))
	require.False(t, allow(t, throttle, testPhone))

	// Only the first send has left the window.
	*now = now.Add(31 * time.Second)
	assert.True(t, allow(t, throttle, testPhone))
	assert.False(t, allow(t, throttle, testPhone))
}

func TestSendThrottle_RejectedRetriesDoNotExtendLockout(t *testing.T) {
	throttle, mr, now := setupTestRedis(t)

	for i := 0; i < 3; i++ {
		require.True(t, allow(t, throttle, testPhone))
	}
	for _, d := range []time.Duration{20 * time.Second, 20 * time.Second, 19 * time.Second} {
		*now = now.Add(d)
		require.False(t, allow(t, throttle, testPhone))
	}

	members, err := mr.ZMembers(keyPrefix + testPhone)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	*now = now.Add(2 * time.Second)
	assert.True(t, allow(t, throttle, testPhone))
}

func TestSendThrottle_PhonesAreIndependent(t *testing.T) {
	throttle, _, _ := setupTestRedis(t)

	for i := 0; i < 3; i++ {
		require.True(t, allow(t, throttle, "01011112222"))
	}
	assert.False(t, allow(t, throttle, "01011112222"))
	assert.True(t, allow(t, throttle, "01033334444"))
}

func TestSendThrottle_SetsExpiry(t *testing.T) {
	throttle, mr, _ := setupTestRedis(t)

	require.True(t, allow(t, throttle, testPhone))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+testPhone))
}

func TestSendThrottle_InvalidWindow(t *testing.T) {
	throttle, _, _ := setupTestRedis(t)

	_, err := throttle.Allow(context.Background(), testPhone, 3, 0)
	assert.Error(t, err)
}

func TestSendThrottle_RedisDown(t *testing.T) {
	throttle, mr, _ := setupTestRedis(t)
	mr.Close()

	_, err := throttle.Allow(context.Background(), testPhone, 3, time.Minute)
	assert.Error(t, err)
}
