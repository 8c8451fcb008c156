package dex

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

type MatchRequest struct {
	Limit int `json:"limit"`
	// Accounts 非空时必须包含每次撮合双方的 open orders 地址
	Accounts []solana.PublicKey `json:"accounts,omitempty"`
}

// MatchOrders 反复撮合两边队头直到不交叉、某边为空或达到 limit
// 任意一步出错整次调用回滚；返回成交笔数
func (p *Processor) MatchOrders(ctx context.Context, op Op, req MatchRequest) (int, error) {
	t, err := p.begin()
	if err != nil {
		return 0, err
	}
	if t.market.Paused {
		return 0, xerr.ErrPaused
	}

	var (
		n        int
		feeTotal uint64
	)
	for n < req.Limit {
		bid, okb := t.book(matching.Bid).Best()
		ask, oka := t.book(matching.Ask).Best()
		if !okb || !oka || !Crossed(bid.Price, ask.Price) {
			break
		}
		f, err := t.fill(bid, ask, req.Accounts)
		if err != nil {
			return 0, err
		}
		if feeTotal, err = add(feeTotal, f); err != nil {
			return 0, err
		}
		n++
	}

	if feeTotal > 0 {
		acc, err := add(t.market.FeesAccrued, feeTotal)
		if err != nil {
			return 0, err
		}
		t.market.FeesAccrued = acc
		t.transfer(Transfer{
			Kind:   TransferVaultToVault,
			Mint:   t.market.QuoteMint,
			From:   t.market.QuoteVault,
			To:     t.market.FeeVault,
			Amount: feeTotal,
		})
	}
	if err := t.commit(ctx, op); err != nil {
		return 0, err
	}
	return n, nil
}

func containsKey(keys []solana.PublicKey, k solana.PublicKey) bool {
	for _, x := range keys {
		if x.Equals(k) {
			return true
		}
	}
	return false
}

// fill 撮合一对队头，返回本笔收取的手续费
func (t *txn) fill(bid, ask matching.Order, accounts []solana.PublicKey) (uint64, error) {
	if bid.Owner.Equals(ask.Owner) {
		return 0, xerr.ErrSelfTradeForbidden
	}
	if len(accounts) > 0 && (!containsKey(accounts, bid.Owner) || !containsKey(accounts, ask.Owner)) {
		return 0, xerr.ErrInvalidMakerAccount
	}
	bidOO, ok := t.openOrders(bid.Owner)
	if !ok {
		return 0, xerr.ErrInvalidMakerAccount
	}
	askOO, ok := t.openOrders(ask.Owner)
	if !ok {
		return 0, xerr.ErrInvalidMakerAccount
	}

	m := &t.market
	// id 小的先挂，是 maker，按它的价格成交
	price, bidBps, askBps := ask.Price, m.TakerFeeBps, m.MakerFeeBps
	taker := bidOO.Owner
	if bid.ID < ask.ID {
		price, bidBps, askBps = bid.Price, m.MakerFeeBps, m.TakerFeeBps
		taker = askOO.Owner
	}
	qty := min(bid.Quantity, ask.Quantity)

	quote, err := notional(price, qty, m.PriceScale)
	if err != nil {
		return 0, err
	}
	askFee, err := fee(quote, askBps)
	if err != nil {
		return 0, err
	}
	bidFee, err := fee(quote, bidBps)
	if err != nil {
		return 0, err
	}

	// 买方释放的预留 = 成交前剩余预留 - 成交后剩余预留
	before, err := bidReserve(bid.Price, bid.Quantity, m.PriceScale, bid.FeeBps)
	if err != nil {
		return 0, err
	}
	after, err := bidReserve(bid.Price, bid.Quantity-qty, m.PriceScale, bid.FeeBps)
	if err != nil {
		return 0, err
	}
	release, err := sub(before, after)
	if err != nil {
		return 0, err
	}
	spare, err := sub(release, quote)
	if err != nil {
		return 0, err
	}
	bidFee = min(bidFee, spare)
	refund := spare - bidFee

	proceeds, err := sub(quote, askFee)
	if err != nil {
		return 0, err
	}

	if err := bidOO.debitLocked(Quote, release); err != nil {
		return 0, err
	}
	if err := bidOO.creditFree(Quote, refund); err != nil {
		return 0, err
	}
	if err := bidOO.creditFree(Base, qty); err != nil {
		return 0, err
	}
	if err := askOO.debitLocked(Base, qty); err != nil {
		return 0, err
	}
	if err := askOO.creditFree(Quote, proceeds); err != nil {
		return 0, err
	}

	if err := t.consume(matching.Bid, bidOO, bid, qty); err != nil {
		return 0, err
	}
	if err := t.consume(matching.Ask, askOO, ask, qty); err != nil {
		return 0, err
	}

	t.emit(Event{
		Type:       EvTrade,
		Taker:      taker,
		MakerBid:   bidOO.Owner,
		MakerAsk:   askOO.Owner,
		Price:      price,
		Quantity:   qty,
		BidOrderID: bid.ID,
		AskOrderID: ask.ID,
	})
	total := bidFee + askFee
	if total > 0 {
		t.emit(Event{Type: EvFeeCollected, Amount: total})
	}
	return total, nil
}

// consume 全部成交就出簿出账户，否则原地减量
func (t *txn) consume(side matching.Side, oo *OpenOrders, o matching.Order, qty uint64) error {
	book := t.book(side)
	if qty < o.Quantity {
		return book.Shrink(o.ID, o.Quantity-qty)
	}
	if _, err := book.Remove(o.ID); err != nil {
		return err
	}
	return oo.RemoveOrder(o.ID)
}
