package matching

import (
	"math"

	"github.com/gagliardetto/solana-go"
)

// 每一侧订单簿的固定容量
const Capacity = 64

// Sentinel 表示“没有节点”，链表终止 / 空闲链表为空
const Sentinel uint32 = math.MaxUint32

type Side uint8

const (
	Bid Side = iota + 1
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

func (s Side) Valid() bool { return s == Bid || s == Ask }

// Opposite 对手方
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// NodeTag 节点只能是三种形态之一
type NodeTag uint8

const (
	TagUninitialized NodeTag = iota
	TagFree
	TagOrder
)

func (t NodeTag) String() string {
	switch t {
	case TagFree:
		return "free"
	case TagOrder:
		return "order"
	default:
		return "uninitialized"
	}
}

// Order 挂在簿上的限价单
type Order struct {
	Owner    solana.PublicKey `json:"owner"` // open orders 账户地址
	ID       uint64           `json:"id"`
	Price    uint64           `json:"price"`
	Quantity uint64           `json:"quantity"` // 剩余 base 数量
	FeeBps   uint16           `json:"feeBps"`   // 下单时预留手续费的费率（只对买单有意义）
}

type Node struct {
	Order Order   `json:"order"`
	Next  uint32  `json:"next"`
	Prev  uint32  `json:"prev"`
	Tag   NodeTag `json:"tag"`
}

// before 判断 a 是否应排在 b 前面：价格优先，同价 id 小的优先
func before(side Side, a, b *Order) bool {
	if a.Price != b.Price {
		if side == Bid {
			return a.Price > b.Price
		}
		return a.Price < b.Price
	}
	return a.ID < b.ID
}
