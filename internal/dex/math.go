package dex

import (
	"github.com/holiman/uint256"
	"gopherdex.com/pkg/xerr"
)

const (
	MaxFeeBps          = 10_000
	DefaultPriceScale  = 1_000_000
	DefaultMinBaseQty  = 1
	DefaultMinNotional = 1
)

// 所有金额都是 u64 原子单位，中间结果放到 256 位里算，最后收窄回 u64

// mulDiv floor(a*b/d)
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, xerr.ErrMathOverflow
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, xerr.ErrMathOverflow
	}
	return x.Uint64(), nil
}

func add(a, b uint64) (uint64, error) {
	z, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !z.IsUint64() {
		return 0, xerr.ErrMathOverflow
	}
	return z.Uint64(), nil
}

func sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, xerr.ErrMathOverflow
	}
	return a - b, nil
}

// notional 成交额：price * qty / scale
func notional(price, qty, scale uint64) (uint64, error) {
	return mulDiv(price, qty, scale)
}

func fee(amount uint64, bps uint16) (uint64, error) {
	return mulDiv(amount, uint64(bps), MaxFeeBps)
}

// bidReserve 买单为剩余数量锁定的 quote：成交额 + 按下单时费率预留的手续费
func bidReserve(price, qty, scale uint64, feeBps uint16) (uint64, error) {
	n, err := notional(price, qty, scale)
	if err != nil {
		return 0, err
	}
	f, err := fee(n, feeBps)
	if err != nil {
		return 0, err
	}
	return add(n, f)
}

func maxBps(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}
