package xredis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 需要真实 Redis：DEX_TEST_REDIS_ADDR=127.0.0.1:6379
func testRedis(t *testing.T) *Config {
	addr := os.Getenv("DEX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DEX_TEST_REDIS_ADDR not set")
	}
	return &Config{Addr: addr, DB: 15}
}

func TestLeaderLock(t *testing.T) {
	ctx := context.Background()
	rdb, err := NewRedis(ctx, testRedis(t))
	require.NoError(t, err)
	defer rdb.Close()

	key := "dex:test:leader:" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, key)

	a := NewLeaderLock(rdb, key, 2*time.Second)
	b := NewLeaderLock(rdb, key, 2*time.Second)
	require.NotEqual(t, a.ID(), b.ID())

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// 持有者续期成功，其他节点抢不到
	ok, err = a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// b 放不掉 a 的锁
	require.NoError(t, b.Release(ctx))
	require.NoError(t, a.Release(ctx))

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}
