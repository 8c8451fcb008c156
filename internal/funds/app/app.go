package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gopherdex.com/internal/funds"
	"gopherdex.com/internal/funds/repo"
	"gopherdex.com/internal/funds/repo/memory"
	gmysql "gopherdex.com/internal/funds/repo/mysql"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
	"gopherdex.com/pkg/orm"
	"gopherdex.com/pkg/ratelimit"
	"gopherdex.com/pkg/safe"
	"gopherdex.com/pkg/xredis"
	"go.uber.org/zap"
)

// Funds 账本相关的全部依赖，按配置装配
type Funds struct {
	Repo    repo.Repo
	Redis   *redis.Client // 没配 redis 时为 nil
	Ledger  *funds.Ledger
	Service *funds.BalanceService
	Durable bool // mysql 账本跨重启保留余额
}

// Build 装配资金模块：driver 决定存储，redis 可选，breaker 可选
func Build(ctx context.Context, cfg *funds.Cfg) (*Funds, error) {
	out := &Funds{}
	switch cfg.Driver {
	case "", funds.DriverMemory:
		out.Repo = memory.NewBalancesRepo()
	case funds.DriverMySQL:
		db, err := orm.NewMySQL(ctx, &cfg.DB)
		if err != nil {
			return nil, err
		}
		if err := gmysql.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate funds: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		safe.GoCtx(ctx, func(ctx context.Context) { metrics.ObserveDBStats(ctx, sqlDB) })
		out.Repo = gmysql.NewBalancesRepo(db)
		out.Durable = true
	default:
		return nil, fmt.Errorf("unknown funds driver %q", cfg.Driver)
	}

	var cache funds.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := xredis.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			_ = out.Repo.Close()
			return nil, err
		}
		safe.GoCtx(ctx, func(ctx context.Context) { metrics.ObserveRedisStats(ctx, rdb) })
		out.Redis = rdb
		cache = funds.NewRedisCache(rdb)
	}

	name := cfg.Driver
	if name == "" {
		name = funds.DriverMemory
	}
	out.Ledger = funds.NewLedger(name, out.Repo, cache)
	if cfg.Breaker.Enabled {
		out.Ledger.WithBreaker(ratelimit.NewManager("funds", cfg.Breaker.Rule, nil))
	}
	out.Service = funds.NewBalanceService(out.Repo, cache, cfg.CacheTTL)

	logger.Info(ctx, "funds ready",
		zap.String("driver", name),
		zap.Bool("cache", cache != nil),
		zap.Bool("breaker", cfg.Breaker.Enabled))
	return out, nil
}

func (f *Funds) Close() error {
	if f.Redis != nil {
		_ = f.Redis.Close()
	}
	return f.Repo.Close()
}
