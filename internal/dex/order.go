package dex

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

type NewOrderRequest struct {
	Owner    solana.PublicKey `json:"owner"`
	Side     matching.Side    `json:"side"`
	Price    uint64           `json:"price"`
	Quantity uint64           `json:"quantity"`
	PostOnly bool             `json:"postOnly"`
}

// NewLimitOrder 校验 -> 锁资金 -> 分配 id -> 入簿 -> 记到账户
// 返回订单 id；挂单后簿子可能处于交叉状态，等撮合来吃
func (p *Processor) NewLimitOrder(ctx context.Context, op Op, req NewOrderRequest) (uint64, error) {
	t, err := p.begin()
	if err != nil {
		return 0, err
	}
	m := &t.market
	if err := m.checkOrder(req.Price, req.Quantity); err != nil {
		return 0, err
	}
	if !req.Side.Valid() {
		return 0, xerr.ErrInvalidOrderInput
	}

	book := t.book(req.Side)
	if req.PostOnly {
		if best, ok := t.book(req.Side.Opposite()).Best(); ok {
			bid, ask := req.Price, best.Price
			if req.Side == matching.Ask {
				bid, ask = best.Price, req.Price
			}
			if Crossed(bid, ask) {
				return 0, xerr.ErrOrderWouldCross
			}
		}
	}
	if book.IsFull() {
		return 0, xerr.ErrOrderBookFull
	}

	oo, err := t.ownerAccount(req.Owner, true)
	if err != nil {
		return 0, err
	}
	if oo.OrderCount() >= MaxOpenOrders {
		return 0, xerr.ErrOpenOrdersFull
	}

	// 锁定额：卖单锁 base 数量；买单锁成交额 + 按较高费率预留的手续费
	var (
		asset  = Base
		mint   = m.BaseMint
		amount = req.Quantity
		feeBps uint16
	)
	if req.Side == matching.Bid {
		asset, mint = Quote, m.QuoteMint
		feeBps = maxBps(m.MakerFeeBps, m.TakerFeeBps)
		if amount, err = bidReserve(req.Price, req.Quantity, m.PriceScale, feeBps); err != nil {
			return 0, err
		}
	}
	fromFree, err := oo.lock(asset, amount)
	if err != nil {
		return 0, err
	}
	t.transfer(Transfer{Kind: TransferToVault, Mint: mint, From: req.Owner, To: m.vaultFor(mint), Amount: amount - fromFree})

	seq, err := add(m.OrderSequenceNumber, 1)
	if err != nil {
		return 0, err
	}
	m.OrderSequenceNumber = seq
	id := seq

	if _, err := book.Insert(matching.Order{
		Owner:    oo.Address,
		ID:       id,
		Price:    req.Price,
		Quantity: req.Quantity,
		FeeBps:   feeBps,
	}); err != nil {
		return 0, err
	}
	if err := oo.AddOrder(id); err != nil {
		return 0, err
	}

	t.emit(Event{
		Type:     EvOrderPlaced,
		Owner:    req.Owner,
		OrderID:  id,
		Price:    req.Price,
		Quantity: req.Quantity,
		Side:     req.Side,
	})
	if err := t.commit(ctx, op); err != nil {
		return 0, err
	}
	return id, nil
}

type CancelRequest struct {
	Owner   solana.PublicKey `json:"owner"`
	OrderID uint64           `json:"orderId"`
}

// CancelLimitOrder 只有下单人能撤；剩余预留额原路回到 free
// 暂停状态下也允许撤单
func (p *Processor) CancelLimitOrder(ctx context.Context, op Op, req CancelRequest) error {
	t, err := p.begin()
	if err != nil {
		return err
	}
	side := matching.Bid
	order, ok := t.book(matching.Bid).Find(req.OrderID)
	if !ok {
		side = matching.Ask
		if order, ok = t.book(matching.Ask).Find(req.OrderID); !ok {
			return xerr.ErrOrderNotFound
		}
	}

	addr, _, err := OpenOrdersAddress(p.programID, t.market.Address, req.Owner)
	if err != nil {
		return err
	}
	if !addr.Equals(order.Owner) {
		return xerr.ErrUnauthorized
	}
	oo, ok := t.openOrders(addr)
	if !ok {
		return xerr.ErrOrderNotFoundInOpenOrders
	}

	if _, err := t.book(side).Remove(req.OrderID); err != nil {
		return err
	}
	if err := oo.RemoveOrder(req.OrderID); err != nil {
		return err
	}
	if err := releaseRemaining(&t.market, oo, side, order); err != nil {
		return err
	}

	t.emit(Event{Type: EvOrderCancelled, Owner: oo.Owner, OrderID: req.OrderID, Side: side})
	return t.commit(ctx, op)
}

// releaseRemaining 订单剩余部分对应的锁定额 -> free
func releaseRemaining(m *Market, oo *OpenOrders, side matching.Side, o matching.Order) error {
	if side == matching.Ask {
		return oo.unlock(Base, o.Quantity)
	}
	r, err := bidReserve(o.Price, o.Quantity, m.PriceScale, o.FeeBps)
	if err != nil {
		return err
	}
	return oo.unlock(Quote, r)
}
