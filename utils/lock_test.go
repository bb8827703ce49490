package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSerialized(t *testing.T, locker Locker) {
	t.Helper()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "loan:1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	assertSerialized(t, NewLocalLocker())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker()

	unlockA, err := locker.Lock(context.Background(), "application:a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "application:b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerRespectsContext(t *testing.T) {
	locker := NewLocalLocker()

	unlock, err := locker.Lock(context.Background(), "loan:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "loan:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "loan:1")
	require.NoError(t, err)
	again()
	assert.Empty(t, locker.locks)
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedisLockerSerializesSameKey(t *testing.T) {
	_, client := newMiniredisClient(t)
	assertSerialized(t, NewRedisLocker(client, time.Second))
}

func TestRedisLockerReleaseOnlyOwnKey(t *testing.T) {
	s, client := newMiniredisClient(t)
	locker := NewRedisLocker(client, time.Minute)

	unlock, err := locker.Lock(context.Background(), "loan:7")
	require.NoError(t, err)
	assert.True(t, s.Exists("lending:lock:loan:7"))

	// Ключ перехвачен другим владельцем после истечения TTL
	s.Set("lending:lock:loan:7", "someone-else")
	unlock()
	assert.True(t, s.Exists("lending:lock:loan:7"))

	s.Del("lending:lock:loan:7")
	unlock2, err := locker.Lock(context.Background(), "loan:7")
	require.NoError(t, err)
	unlock2()
	assert.False(t, s.Exists("lending:lock:loan:7"))
}

func TestRedisLockerRespectsContext(t *testing.T) {
	_, client := newMiniredisClient(t)
	locker := NewRedisLocker(client, time.Minute)

	unlock, err := locker.Lock(context.Background(), "application:x")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "application:x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	addr := s.Addr()
	client, err := ConnectRedis(context.Background(), addr, "", 0)
	require.NoError(t, err)
	client.Close()

	s.Close()
	_, err = ConnectRedis(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
