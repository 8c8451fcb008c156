package funds

import (
	"context"
	"time"

	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/funds/repo"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
	"gopherdex.com/pkg/ratelimit"
	"gopherdex.com/pkg/xerr"
	"go.uber.org/zap"
)

const breakerResource = "ledger.apply"

// Ledger 把 repo 适配成撮合核心的 dex.TokenLedger
type Ledger struct {
	name    string
	repo    repo.BalancesRepo
	cache   Cache // 可为 nil
	breaker *ratelimit.Manager
}

var _ dex.TokenLedger = (*Ledger)(nil)

func NewLedger(name string, r repo.BalancesRepo, cache Cache) *Ledger {
	return &Ledger{name: name, repo: r, cache: cache}
}

// WithBreaker 账本连续出故障时快速失败，返回 LedgerUnavailable
func (l *Ledger) WithBreaker(m *ratelimit.Manager) *Ledger {
	l.breaker = m
	return l
}

func (l *Ledger) Apply(ctx context.Context, b dex.Batch) error {
	start := time.Now()
	var err error
	if l.breaker != nil {
		err = l.breaker.Do(breakerResource, xerr.ErrLedgerUnavailable, func() error {
			return l.repo.ApplyBatch(ctx, b)
		})
	} else {
		err = l.repo.ApplyBatch(ctx, b)
	}
	metrics.LedgerApplyDuration.WithLabelValues(l.name, ledgerStatus(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		if xerr.ClassOf(err) == xerr.ClassInternal {
			logger.Error(ctx, "ledger apply failed",
				zap.String("key", b.Key),
				zap.String("market", b.Market.String()),
				zap.Error(err))
			// 核心只认识 CodeError，基础设施错误统一成 LedgerUnavailable
			return xerr.ErrLedgerUnavailable
		}
		return err
	}
	l.invalidate(ctx, b)
	return nil
}

// invalidate 删掉这批转账涉及的缓存，读路径再回源
func (l *Ledger) invalidate(ctx context.Context, b dex.Batch) {
	if l.cache == nil {
		return
	}
	for _, tr := range b.Transfers {
		mint := tr.Mint.String()
		for _, acc := range [2]string{tr.From.String(), tr.To.String()} {
			if err := l.cache.DelBalance(ctx, acc, mint); err != nil {
				logger.Warn(ctx, "balance cache del failed", zap.String("account", acc), zap.Error(err))
			}
		}
	}
}

func ledgerStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case xerr.ClassOf(err) == xerr.ClassLedger:
		return "rejected"
	default:
		return "error"
	}
}
