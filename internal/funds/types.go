package funds

import (
	"time"

	"gopherdex.com/internal/funds/repo/model"
)

// Balance 对外返回的余额
type Balance struct {
	Account   string    `json:"account"`
	Mint      string    `json:"mint"`
	Amount    uint64    `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

func fromRow(r model.BalanceRow) Balance {
	return Balance{Account: r.Account, Mint: r.Mint, Amount: r.Amount, UpdatedAt: r.UpdatedAt}
}
