package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/funds/repo"
	"gopherdex.com/internal/funds/repo/model"
	"gopherdex.com/pkg/orm"
	"gopherdex.com/pkg/xerr"
)

type balKey struct {
	account string
	mint    string
}

// balancesRepo 单进程内存账本，开发和测试用
type balancesRepo struct {
	mu      sync.RWMutex
	bal     map[balKey]model.BalanceRow
	applied map[string][32]byte
}

func NewBalancesRepo() repo.Repo {
	return &balancesRepo{
		bal:     make(map[balKey]model.BalanceRow, 64),
		applied: make(map[string][32]byte, 1024),
	}
}

func (r *balancesRepo) GetBalance(_ context.Context, account, mint string) (model.BalanceRow, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.bal[balKey{account, mint}]
	if !ok {
		row = model.BalanceRow{Account: account, Mint: mint}
	}
	return row, ok, nil
}

func (r *balancesRepo) ListBalances(_ context.Context, account string, page, limit int) ([]model.BalanceRow, error) {
	r.mu.RLock()
	rows := make([]model.BalanceRow, 0, 4)
	for k, row := range r.bal {
		if k.account == account {
			rows = append(rows, row)
		}
	}
	r.mu.RUnlock()

	// 按 mint 排序，输出稳定
	sort.Slice(rows, func(i, j int) bool { return rows[i].Mint < rows[j].Mint })
	lo, hi := orm.PageBounds(len(rows), page, limit)
	return rows[lo:hi], nil
}

func (r *balancesRepo) ApplyBatch(_ context.Context, b dex.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var h [32]byte
	if b.Key != "" {
		h = repo.BatchHash(b)
		if prev, ok := r.applied[b.Key]; ok {
			if prev != h {
				return repo.ErrKeyConflict
			}
			return nil
		}
	}

	// 先在副本上算，全部成功再落回去
	staged := make(map[balKey]uint64, len(b.Transfers)*2)
	get := func(k balKey) uint64 {
		if v, ok := staged[k]; ok {
			return v
		}
		return r.bal[k].Amount
	}
	for _, tr := range b.Transfers {
		mint := tr.Mint.String()
		from, to := balKey{tr.From.String(), mint}, balKey{tr.To.String(), mint}
		fb := get(from)
		if fb < tr.Amount {
			return xerr.ErrInsufficientFunds
		}
		staged[from] = fb - tr.Amount
		tb := get(to)
		if tb > math.MaxUint64-tr.Amount {
			return xerr.ErrMathOverflow
		}
		staged[to] = tb + tr.Amount
	}

	now := time.Now().UTC()
	for k, v := range staged {
		r.bal[k] = model.BalanceRow{Account: k.account, Mint: k.mint, Amount: v, UpdatedAt: now}
	}
	if b.Key != "" {
		r.applied[b.Key] = h
	}
	return nil
}

func (r *balancesRepo) Credit(_ context.Context, account, mint string, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := balKey{account, mint}
	cur := r.bal[k].Amount
	if cur > math.MaxUint64-amount {
		return xerr.ErrMathOverflow
	}
	r.bal[k] = model.BalanceRow{Account: account, Mint: mint, Amount: cur + amount, UpdatedAt: time.Now().UTC()}
	return nil
}

func (r *balancesRepo) Close() error { return nil }
