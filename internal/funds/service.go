package funds

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"gopherdex.com/internal/funds/repo"
	"gopherdex.com/pkg/logger"
	"go.uber.org/zap"
)

// BalanceService 余额查询：cache -> singleflight -> repo
type BalanceService struct {
	cache Cache // 可为 nil
	repo  repo.BalancesRepo
	sf    singleflight.Group
	ttl   time.Duration
}

func NewBalanceService(r repo.BalancesRepo, cache Cache, ttl time.Duration) *BalanceService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &BalanceService{cache: cache, repo: r, ttl: ttl}
}

func (s *BalanceService) GetBalance(ctx context.Context, account, mint string) (Balance, error) {
	if s.cache != nil {
		if b, ok, err := s.cache.GetBalance(ctx, account, mint); err == nil && ok {
			return b, nil
		}
	}
	// singleflight 防击穿
	v, err, _ := s.sf.Do(account+":"+mint, func() (interface{}, error) {
		row, _, err := s.repo.GetBalance(ctx, account, mint)
		if err != nil {
			return nil, fmt.Errorf("get balance: %w", err)
		}
		b := fromRow(row)
		if s.cache != nil {
			if err := s.cache.SetBalance(ctx, b, s.ttl); err != nil {
				logger.Warn(ctx, "balance cache set failed", zap.Error(err))
			}
		}
		return b, nil
	})
	if err != nil {
		return Balance{}, err
	}
	return v.(Balance), nil
}

func (s *BalanceService) ListBalances(ctx context.Context, account string, page, limit int) ([]Balance, error) {
	rows, err := s.repo.ListBalances(ctx, account, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]Balance, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// Credit 水龙头，开发环境用
func (s *BalanceService) Credit(ctx context.Context, account, mint string, amount uint64) error {
	if err := s.repo.Credit(ctx, account, mint, amount); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.DelBalance(ctx, account, mint)
	}
	return nil
}
