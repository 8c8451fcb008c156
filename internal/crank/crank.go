package crank

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/engine"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultLimit    = 5
)

// 跳过原因，也是指标 label
const (
	SkipEmpty      = "empty"
	SkipNotCrossed = "not_crossed"
	SkipSelfTrade  = "self_trade"
	SkipPaused     = "paused"
	SkipNotLeader  = "not_leader"
)

type Engine interface {
	Markets() []dex.Market
	View(market string) (*dex.View, error)
	Do(ctx context.Context, market string, cmd engine.Command) (engine.Result, error)
}

// Leader 多实例部署时只让一个 crank 干活
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Limit    int           `mapstructure:"limit"`
}

type Crank struct {
	eng    Engine
	cfg    Config
	leader Leader // 可为 nil
}

func New(eng Engine, cfg Config, leader Leader) *Crank {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Crank{eng: eng, cfg: cfg, leader: leader}
}

// Run 每个 interval 扫一遍所有市场，直到 ctx 结束
func (c *Crank) Run(ctx context.Context) error {
	logger.Info(ctx, "crank started", zap.Duration("interval", c.cfg.Interval), zap.Int("limit", c.cfg.Limit))
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	defer func() {
		if c.leader != nil {
			// ctx 已经取消，放锁用新的
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = c.leader.Release(rctx)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Tick 扫一遍，返回本轮总成交笔数；单个市场失败不影响其它市场，也不在本轮重试
func (c *Crank) Tick(ctx context.Context) int {
	if c.leader != nil {
		ok, err := c.leader.TryAcquire(ctx)
		if err != nil {
			logger.Warn(ctx, "crank leader lock failed", zap.Error(err))
		}
		if !ok {
			metrics.CrankRunTotal.WithLabelValues("", SkipNotLeader).Inc()
			return 0
		}
	}
	total := 0
	for _, m := range c.eng.Markets() {
		key := m.Address.String()
		n, reason, err := c.CrankMarket(ctx, key)
		switch {
		case err != nil:
			metrics.CrankRunTotal.WithLabelValues(key, "error").Inc()
			logger.Warn(ctx, "crank match failed", zap.String("market", key), zap.Error(err))
		case reason != "":
			metrics.CrankRunTotal.WithLabelValues(key, reason).Inc()
		default:
			metrics.CrankRunTotal.WithLabelValues(key, "matched").Inc()
			logger.Debug(ctx, "crank matched", zap.String("market", key), zap.Int("fills", n))
			total += n
		}
	}
	return total
}

// CrankMarket 预检通过才发 MatchOrders；reason 非空表示跳过
func (c *Crank) CrankMarket(ctx context.Context, market string) (int, string, error) {
	v, err := c.eng.View(market)
	if err != nil {
		return 0, "", err
	}
	reason, accounts := precheck(v, c.cfg.Limit)
	if reason != "" {
		return 0, reason, nil
	}
	res, err := c.eng.Do(ctx, market, engine.Command{
		Type:     engine.CmdMatch,
		Limit:    uint32(c.cfg.Limit),
		Accounts: accounts,
	})
	if err != nil {
		return 0, "", err
	}
	return res.Matched, "", nil
}

// precheck 两边都有单、价格交叉、队头不是同一个账户
// accounts 取两边前 limit 张单的 open orders 地址：limit 笔成交最多吃到这么深
func precheck(v *dex.View, limit int) (string, []solana.PublicKey) {
	if v.Market.Paused {
		return SkipPaused, nil
	}
	bid, ask, err := v.BestBidAsk()
	if err != nil {
		return SkipEmpty, nil
	}
	if !dex.Crossed(bid.Price, ask.Price) {
		return SkipNotCrossed, nil
	}
	if bid.Owner.Equals(ask.Owner) {
		return SkipSelfTrade, nil
	}

	seen := make(map[solana.PublicKey]struct{}, 2*limit)
	accounts := make([]solana.PublicKey, 0, 2*limit)
	add := func(orders []matching.Order) {
		for i := 0; i < len(orders) && i < limit; i++ {
			if _, ok := seen[orders[i].Owner]; ok {
				continue
			}
			seen[orders[i].Owner] = struct{}{}
			accounts = append(accounts, orders[i].Owner)
		}
	}
	add(v.Bids)
	add(v.Asks)
	return "", accounts
}
