package funds

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
	"gopherdex.com/pkg/metrics"
)

type Cache interface {
	GetBalance(ctx context.Context, account, mint string) (Balance, bool, error)
	SetBalance(ctx context.Context, b Balance, ttl time.Duration) error
	DelBalance(ctx context.Context, account, mint string) error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(c *redis.Client) Cache {
	return &redisCache{client: c}
}

func (r *redisCache) GetBalance(ctx context.Context, account, mint string) (Balance, bool, error) {
	key := balanceKey(account, mint)

	start := time.Now()
	b, err := r.client.Get(ctx, key).Bytes()
	observeRedis("get", start, err)
	if err == redis.Nil {
		return Balance{}, false, nil
	}
	if err != nil {
		return Balance{}, false, err
	}

	var res Balance
	if err := json.Unmarshal(b, &res); err != nil {
		// 缓存脏了就删掉，避免持续命中错误
		_ = r.client.Del(ctx, key).Err()
		return Balance{}, false, err
	}
	return res, true, nil
}

func (r *redisCache) SetBalance(ctx context.Context, bal Balance, ttl time.Duration) error {
	b, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	// 加入随机时间 防止同时过期
	start := time.Now()
	err = r.client.Set(ctx, balanceKey(bal.Account, bal.Mint), b, withJitter(ttl, 300*time.Millisecond)).Err()
	observeRedis("set", start, err)
	return err
}

func (r *redisCache) DelBalance(ctx context.Context, account, mint string) error {
	start := time.Now()
	err := r.client.Del(ctx, balanceKey(account, mint)).Err()
	observeRedis("del", start, err)
	return err
}

func balanceKey(account, mint string) string {
	return fmt.Sprintf("dex:bal:%s:%s", account, mint)
}

func observeRedis(cmd string, start time.Time, err error) {
	status := "ok"
	if err != nil && err != redis.Nil {
		status = "error"
	}
	metrics.RedisCmdDuration.WithLabelValues(cmd, status).Observe(time.Since(start).Seconds())
}

func withJitter(ttl time.Duration, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	// [0, jitter) 的随机
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
