package xredis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 是自己的锁才续期，原子执行
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// 是自己的锁才删
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LeaderLock 基于 SETNX 的主节点锁，带 ttl 防死锁
type LeaderLock struct {
	rdb *redis.Client
	key string
	id  string // 当前节点的唯一 ID（hostname + uuid）
	ttl time.Duration
}

func NewLeaderLock(rdb *redis.Client, key string, ttl time.Duration) *LeaderLock {
	host, _ := os.Hostname()
	return &LeaderLock{
		rdb: rdb,
		key: key,
		id:  fmt.Sprintf("%s-%s", host, uuid.New().String()),
		ttl: ttl,
	}
}

func (l *LeaderLock) ID() string { return l.id }

// TryAcquire 抢锁；已经持有则续期
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.id, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("renew %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Release 主动放锁，别人的锁不动
func (l *LeaderLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.id).Err()
}
