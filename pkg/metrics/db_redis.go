package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	DbPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_open",
		Help:      "Current open DB connections",
	})
	DbPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "db_pool_idle"})
	DbPoolInuse        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "db_pool_inuse"})
	DbPoolWaitCount    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "db_pool_wait_count"})
	DbPoolWaitDuration = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "db_pool_wait_seconds"})

	RedisPoolOpen         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_open"})
	RedisPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_idle"})
	RedisPoolStale        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_stale"})
	RedisPoolWaitCount    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "redis_pool_wait_count"})
	RedisPoolWaitDuration = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "redis_pool_wait_seconds"})

	RedisCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "redis_cmd_duration_seconds",
		Help:      "Redis command latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"cmd", "status"})
)

// ObserveDBStats 每 5s 采集一次 DB 连接池，ctx 结束退出
func ObserveDBStats(ctx context.Context, db *sql.DB) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	var lastWaitCount int64
	var lastWaitDuration time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := db.Stats()
		DbPoolOpen.Set(float64(st.OpenConnections))
		DbPoolIdle.Set(float64(st.Idle))
		DbPoolInuse.Set(float64(st.InUse))

		if d := st.WaitCount - lastWaitCount; d > 0 {
			DbPoolWaitCount.Add(float64(d))
			lastWaitCount = st.WaitCount
		}
		if d := st.WaitDuration - lastWaitDuration; d > 0 {
			DbPoolWaitDuration.Add(d.Seconds())
			lastWaitDuration = st.WaitDuration
		}
	}
}

// ObserveRedisStats 同上，采集 Redis 连接池
func ObserveRedisStats(ctx context.Context, rdb *redis.Client) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	var lastWaitCount uint32
	var lastWaitDuration time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := rdb.PoolStats()
		RedisPoolOpen.Set(float64(st.TotalConns))
		RedisPoolIdle.Set(float64(st.IdleConns))
		RedisPoolStale.Set(float64(st.StaleConns))

		if st.WaitCount > lastWaitCount {
			RedisPoolWaitCount.Add(float64(st.WaitCount - lastWaitCount))
			lastWaitCount = st.WaitCount
		}
		if d := st.WaitDurationNs - int64(lastWaitDuration); d > 0 {
			RedisPoolWaitDuration.Add(time.Duration(d).Seconds())
			lastWaitDuration = time.Duration(st.WaitDurationNs)
		}
	}
}
