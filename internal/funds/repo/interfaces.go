package repo

import (
	"context"
	"crypto/sha256"
	"errors"

	"github.com/segmentio/encoding/json"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/funds/repo/model"
)

// ErrKeyConflict 同一个 batch key 带了不同的转账内容
var ErrKeyConflict = errors.New("ledger: batch key reused with different transfers")

type BalancesRepo interface {
	GetBalance(ctx context.Context, account, mint string) (model.BalanceRow, bool, error)
	ListBalances(ctx context.Context, account string, page, limit int) ([]model.BalanceRow, error)
	// ApplyBatch 原子执行；key 非空时同 key 只执行一次
	ApplyBatch(ctx context.Context, b dex.Batch) error
	Credit(ctx context.Context, account, mint string, amount uint64) error
}

type Repo interface {
	BalancesRepo
	Close() error
}

// BatchHash 识别同 key 不同内容的 batch
func BatchHash(b dex.Batch) [32]byte {
	raw, _ := json.Marshal(b.Transfers)
	return sha256.Sum256(append([]byte(b.Market.String()), raw...))
}
