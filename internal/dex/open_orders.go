package dex

import (
	"github.com/gagliardetto/solana-go"
	"gopherdex.com/pkg/xerr"
)

// MaxOpenOrders 每个账户同时挂单上限
const MaxOpenOrders = 16

// OpenOrders 一个 (market, owner) 的资金和挂单记录
// locked 恰好等于该账户所有挂单按剩余数量算出的预留额
type OpenOrders struct {
	Address       solana.PublicKey      `json:"address"`
	Bump          uint8                 `json:"bump"`
	Market        solana.PublicKey      `json:"market"`
	Owner         solana.PublicKey      `json:"owner"`
	BaseFree      uint64                `json:"baseFree"`
	QuoteFree     uint64                `json:"quoteFree"`
	BaseLocked    uint64                `json:"baseLocked"`
	QuoteLocked   uint64                `json:"quoteLocked"`
	OrderIDs      [MaxOpenOrders]uint64 `json:"orderIds"`
	IsInitialized [MaxOpenOrders]bool   `json:"isInitialized"`
	Deposit       uint64                `json:"deposit"`
}

func (o *OpenOrders) clone() *OpenOrders {
	cp := *o
	return &cp
}

// AddOrder 放进第一个空槽
func (o *OpenOrders) AddOrder(id uint64) error {
	for i := range o.IsInitialized {
		if !o.IsInitialized[i] {
			o.OrderIDs[i] = id
			o.IsInitialized[i] = true
			return nil
		}
	}
	return xerr.ErrOpenOrdersFull
}

func (o *OpenOrders) RemoveOrder(id uint64) error {
	for i := range o.IsInitialized {
		if o.IsInitialized[i] && o.OrderIDs[i] == id {
			o.OrderIDs[i] = 0
			o.IsInitialized[i] = false
			return nil
		}
	}
	return xerr.ErrOrderNotFoundInOpenOrders
}

func (o *OpenOrders) HasOrder(id uint64) bool {
	for i := range o.IsInitialized {
		if o.IsInitialized[i] && o.OrderIDs[i] == id {
			return true
		}
	}
	return false
}

func (o *OpenOrders) OrderCount() int {
	n := 0
	for _, used := range o.IsInitialized {
		if used {
			n++
		}
	}
	return n
}

// Orders 已占用槽位里的 id，按槽位顺序
func (o *OpenOrders) Orders() []uint64 {
	out := make([]uint64, 0, MaxOpenOrders)
	for i, used := range o.IsInitialized {
		if used {
			out = append(out, o.OrderIDs[i])
		}
	}
	return out
}

func (o *OpenOrders) IsEmpty() bool {
	return o.BaseFree == 0 && o.QuoteFree == 0 &&
		o.BaseLocked == 0 && o.QuoteLocked == 0 &&
		o.OrderCount() == 0
}

// lock 把 amount 记入 locked，返回其中能从 free 扣掉的部分，剩下的要从外部账户转进来
func (o *OpenOrders) lock(asset Asset, amount uint64) (fromFree uint64, err error) {
	free, locked := o.balances(asset)
	fromFree = amount
	if *free < fromFree {
		fromFree = *free
	}
	nl, err := add(*locked, amount)
	if err != nil {
		return 0, err
	}
	*free -= fromFree
	*locked = nl
	return fromFree, nil
}

// unlock locked -> free
func (o *OpenOrders) unlock(asset Asset, amount uint64) error {
	free, locked := o.balances(asset)
	nl, err := sub(*locked, amount)
	if err != nil {
		return err
	}
	nf, err := add(*free, amount)
	if err != nil {
		return err
	}
	*locked, *free = nl, nf
	return nil
}

// debitLocked 成交时从 locked 扣走
func (o *OpenOrders) debitLocked(asset Asset, amount uint64) error {
	_, locked := o.balances(asset)
	nl, err := sub(*locked, amount)
	if err != nil {
		return err
	}
	*locked = nl
	return nil
}

func (o *OpenOrders) creditFree(asset Asset, amount uint64) error {
	free, _ := o.balances(asset)
	nf, err := add(*free, amount)
	if err != nil {
		return err
	}
	*free = nf
	return nil
}

func (o *OpenOrders) balances(asset Asset) (free, locked *uint64) {
	if asset == Base {
		return &o.BaseFree, &o.BaseLocked
	}
	return &o.QuoteFree, &o.QuoteLocked
}

// Asset 账户里的两种资产
type Asset uint8

const (
	Base Asset = iota + 1
	Quote
)
