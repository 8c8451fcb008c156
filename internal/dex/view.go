package dex

import (
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

// View 某一时刻市场状态的只读副本，可跨 goroutine 共享
type View struct {
	Market     Market           `json:"market"`
	Bids       []matching.Order `json:"bids"`
	Asks       []matching.Order `json:"asks"`
	OpenOrders []OpenOrders     `json:"openOrders"`
}

// View 未初始化时返回 ErrMarketNotInitialized
func (p *Processor) View() (*View, error) {
	st, err := p.state()
	if err != nil {
		return nil, err
	}
	v := &View{
		Market:     st.Market,
		Bids:       st.Bids.Orders(),
		Asks:       st.Asks.Orders(),
		OpenOrders: make([]OpenOrders, 0, len(st.OpenOrders)),
	}
	for _, o := range st.OpenOrders {
		v.OpenOrders = append(v.OpenOrders, *o)
	}
	sort.Slice(v.OpenOrders, func(i, j int) bool {
		return v.OpenOrders[i].Address.String() < v.OpenOrders[j].Address.String()
	})
	return v, nil
}

// BestBidAsk 两边队头；任一边为空返回 ErrOrderBookEmpty
func (v *View) BestBidAsk() (bid, ask matching.Order, err error) {
	if len(v.Bids) == 0 || len(v.Asks) == 0 {
		return bid, ask, xerr.ErrOrderBookEmpty
	}
	return v.Bids[0], v.Asks[0], nil
}

// OpenOrdersOf 按 open orders 地址找
func (v *View) OpenOrdersOf(addr solana.PublicKey) (OpenOrders, bool) {
	i := sort.Search(len(v.OpenOrders), func(i int) bool {
		return v.OpenOrders[i].Address.String() >= addr.String()
	})
	if i < len(v.OpenOrders) && v.OpenOrders[i].Address.Equals(addr) {
		return v.OpenOrders[i], true
	}
	return OpenOrders{}, false
}

// OpenOrdersOfOwner 按钱包地址找
func (v *View) OpenOrdersOfOwner(owner solana.PublicKey) (OpenOrders, bool) {
	for _, o := range v.OpenOrders {
		if o.Owner.Equals(owner) {
			return o, true
		}
	}
	return OpenOrders{}, false
}

// Level 给人看的挂单：数量按 base 精度，价格换算成每个 base 单位多少 quote
type Level struct {
	OrderID  uint64           `json:"orderId"`
	Owner    solana.PublicKey `json:"owner"`
	Price    decimal.Decimal  `json:"price"`
	Quantity decimal.Decimal  `json:"quantity"`
}

type Depth struct {
	Market solana.PublicKey `json:"market"`
	Bids   []Level          `json:"bids"`
	Asks   []Level          `json:"asks"`
}

func (v *View) Depth() Depth {
	d := Depth{Market: v.Market.Address, Bids: make([]Level, 0, len(v.Bids)), Asks: make([]Level, 0, len(v.Asks))}
	for _, o := range v.Bids {
		d.Bids = append(d.Bids, v.level(o))
	}
	for _, o := range v.Asks {
		d.Asks = append(d.Asks, v.level(o))
	}
	return d
}

func (v *View) level(o matching.Order) Level {
	return Level{
		OrderID:  o.ID,
		Owner:    o.Owner,
		Price:    v.Market.UIPrice(o.Price),
		Quantity: UIAmount(o.Quantity, v.Market.BaseDecimals),
	}
}

// UIAmount 原子单位 -> 带精度的数
func UIAmount(atoms uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(atoms), -int32(decimals))
}

// UIPrice price/PriceScale 是每个 base 原子单位的 quote 原子单位，再按两边精度换算
func (m *Market) UIPrice(price uint64) decimal.Decimal {
	scale := m.PriceScale
	if scale == 0 {
		scale = DefaultPriceScale
	}
	p := decimal.NewFromBigInt(new(big.Int).SetUint64(price), 0).
		Div(decimal.NewFromBigInt(new(big.Int).SetUint64(scale), 0))
	return p.Shift(int32(m.BaseDecimals) - int32(m.QuoteDecimals))
}
