package dex

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/pkg/xerr"
)

type Settlement struct {
	Owner solana.PublicKey `json:"owner"`
	Base  uint64           `json:"base"`
	Quote uint64           `json:"quote"`
}

// SettleFunds 把 free 余额全部转回 owner 的外部账户；locked 不动
func (p *Processor) SettleFunds(ctx context.Context, op Op, owner solana.PublicKey) (Settlement, error) {
	t, err := p.begin()
	if err != nil {
		return Settlement{}, err
	}
	oo, err := t.ownerAccount(owner, false)
	if err != nil {
		return Settlement{}, err
	}
	s := Settlement{Owner: owner, Base: oo.BaseFree, Quote: oo.QuoteFree}
	oo.BaseFree, oo.QuoteFree = 0, 0

	m := &t.market
	t.transfer(Transfer{Kind: TransferFromVault, Mint: m.BaseMint, From: m.BaseVault, To: owner, Amount: s.Base})
	t.transfer(Transfer{Kind: TransferFromVault, Mint: m.QuoteMint, From: m.QuoteVault, To: owner, Amount: s.Quote})
	if err := t.commit(ctx, op); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// CloseOpenOrders 销户，押金退到 destination（为空时退给 owner）
func (p *Processor) CloseOpenOrders(ctx context.Context, op Op, owner, destination solana.PublicKey) error {
	t, err := p.begin()
	if err != nil {
		return err
	}
	oo, err := t.ownerAccount(owner, false)
	if err != nil {
		return err
	}
	if !oo.IsEmpty() {
		return xerr.ErrOpenOrdersNotEmpty
	}
	if destination.IsZero() {
		destination = owner
	}
	t.transfer(Transfer{Kind: TransferFromVault, Mint: DepositMint, From: oo.Address, To: destination, Amount: oo.Deposit})
	t.close(oo.Address)
	return t.commit(ctx, op)
}
