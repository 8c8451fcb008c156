package dex

import (
	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/matching"
)

type EventType uint8

const (
	EvMarketInitialized EventType = iota + 1
	EvOrderPlaced
	EvOrderCancelled
	EvTrade
	EvFeeCollected
	EvFeesUpdated
	EvPause
)

func (t EventType) String() string {
	switch t {
	case EvMarketInitialized:
		return "market_initialized"
	case EvOrderPlaced:
		return "order_placed"
	case EvOrderCancelled:
		return "order_cancelled"
	case EvTrade:
		return "trade"
	case EvFeeCollected:
		return "fee_collected"
	case EvFeesUpdated:
		return "fees_updated"
	case EvPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Event 扁平结构，不同类型只用其中一部分字段
//
//	MarketInitialized: BaseMint QuoteMint MakerFeeBps TakerFeeBps TickSize BaseLotSize
//	OrderPlaced:       Owner OrderID Price Quantity Side
//	OrderCancelled:    Owner OrderID
//	Trade:             Taker MakerBid MakerAsk Price Quantity BidOrderID AskOrderID
//	FeeCollected:      Amount
//	FeesUpdated:       MakerFeeBps TakerFeeBps
//	Pause:             Paused
type Event struct {
	Type        EventType        `json:"type"`
	Market      solana.PublicKey `json:"market"`
	Owner       solana.PublicKey `json:"owner"`
	OrderID     uint64           `json:"orderId,omitempty"`
	Side        matching.Side    `json:"side,omitempty"`
	Price       uint64           `json:"price,omitempty"`
	Quantity    uint64           `json:"quantity,omitempty"`
	Taker       solana.PublicKey `json:"taker"`
	MakerBid    solana.PublicKey `json:"makerBid"`
	MakerAsk    solana.PublicKey `json:"makerAsk"`
	BidOrderID  uint64           `json:"bidOrderId,omitempty"`
	AskOrderID  uint64           `json:"askOrderId,omitempty"`
	Amount      uint64           `json:"amount,omitempty"`
	MakerFeeBps uint16           `json:"makerFeeBps,omitempty"`
	TakerFeeBps uint16           `json:"takerFeeBps,omitempty"`
	Paused      bool             `json:"paused"`
	BaseMint    solana.PublicKey `json:"baseMint"`
	QuoteMint   solana.PublicKey `json:"quoteMint"`
	TickSize    uint64           `json:"tickSize,omitempty"`
	BaseLotSize uint64           `json:"baseLotSize,omitempty"`
}

// Emitter 事件只在操作提交后才会发出
type Emitter interface {
	Emit(ev Event)
}

type EmitterFunc func(ev Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard 回放或不关心事件时用
var Discard Emitter = discard{}

// Recorder 把事件攒在内存里，测试和同步调用方用
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(ev Event) { r.Events = append(r.Events, ev) }

func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
