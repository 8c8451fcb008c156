package engine

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/matching"
)

// 命令类型
type CmdType uint8

const (
	CmdInitMarket CmdType = iota + 1 // 建市场
	CmdNewOrder                      // 下限价单
	CmdCancel                        // 撤单
	CmdMatch                         // 撮合
	CmdSettle                        // 结算
	CmdCloseOpenOrders               // 销户
	CmdSetFees                       // 改费率
	CmdSetPause                      // 暂停/恢复

	// CmdReject 只出现在 cmd.wal 里：标记 RejectSeq 那条命令执行失败，回放时跳过
	CmdReject CmdType = 200
)

func (t CmdType) String() string {
	switch t {
	case CmdInitMarket:
		return "InitMarket"
	case CmdNewOrder:
		return "NewOrder"
	case CmdCancel:
		return "Cancel"
	case CmdMatch:
		return "Match"
	case CmdSettle:
		return "Settle"
	case CmdCloseOpenOrders:
		return "CloseOpenOrders"
	case CmdSetFees:
		return "SetFees"
	case CmdSetPause:
		return "SetPause"
	case CmdReject:
		return "Reject"
	default:
		return "Unknown"
	}
}

func (t CmdType) valid() bool { return t >= CmdInitMarket && t <= CmdSetPause }

// Command 进 actor 的一条指令；Signer 是已经鉴权过的调用方
type Command struct {
	Type     CmdType          `json:"type"`
	ReqID    uint64           `json:"reqId"` // 上游幂等/追踪用
	ClientTs int64            `json:"clientTs"`
	Signer   solana.PublicKey `json:"signer"`

	// NewOrder
	Side     matching.Side `json:"side,omitempty"`
	Price    uint64        `json:"price,omitempty"`
	Qty      uint64        `json:"qty,omitempty"`
	PostOnly bool          `json:"postOnly,omitempty"`

	// Cancel
	OrderID uint64 `json:"orderId,omitempty"`

	// Match
	Limit    uint32             `json:"limit,omitempty"`
	Accounts []solana.PublicKey `json:"accounts,omitempty"`

	// CloseOpenOrders
	Destination solana.PublicKey `json:"destination"`

	// SetFees / SetPause
	MakerFeeBps uint16 `json:"makerFeeBps,omitempty"`
	TakerFeeBps uint16 `json:"takerFeeBps,omitempty"`
	Paused      bool   `json:"paused,omitempty"`

	// InitMarket
	Params *dex.MarketParams `json:"params,omitempty"`

	// Reject
	RejectSeq  uint64 `json:"rejectSeq,omitempty"`
	RejectCode uint32 `json:"rejectCode,omitempty"`
}

// Result 同步调用方拿到的执行结果
type Result struct {
	Seq        uint64         `json:"seq"`
	OrderID    uint64         `json:"orderId,omitempty"`
	Matched    int            `json:"matched,omitempty"`
	Settlement dex.Settlement `json:"settlement"`
	Market     dex.Market     `json:"market"`
	Events     []Event        `json:"events,omitempty"`
}

// Event 写进 outbox 的事件：业务事件 + 命令序号
// 同一 market Actor 内 Seq 单调递增，用于对齐/回放/排查
type Event struct {
	dex.Event
	Seq   uint64 `json:"seq"`
	ReqID uint64 `json:"reqId"`
	Idx   uint16 `json:"idx"` // 同一 cmdSeq 内事件序号
	Code  uint32 `json:"code,omitempty"`
}

// 只在 outbox 里出现的类型，和业务事件不冲突
const (
	EvRejected dex.EventType = 249 // 命令被拒，Code 是错误码
	EvCmdEnd   dex.EventType = 250 // 命令结束标记
)

func EventName(t dex.EventType) string {
	switch t {
	case EvRejected:
		return "rejected"
	case EvCmdEnd:
		return "cmd_end"
	default:
		return t.String()
	}
}

// 定义错误
var (
	ErrEngineBusy    = errors.New("engine busy: mailbox full")
	ErrUnknownMarket = errors.New("unknown market")
	ErrMarketExists  = errors.New("market already exists")
	ErrBadCommand    = errors.New("bad command")
	ErrEngineStopped = errors.New("engine stopped")
	ErrActorDead     = errors.New("market actor stopped after a persistence failure")
)
