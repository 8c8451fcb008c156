package engine

import (
	"fmt"
	"io"
	"strings"

	"gopherdex.com/internal/dex"
	"gopherdex.com/pkg/wal"
)

// DumpStats 排查用：一共多少条、尾部是否半截
type DumpStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// DumpCmdWAL 把 cmd.wal 逐条打印成一行文本
func DumpCmdWAL(w io.Writer, path string, codec CmdCodec) (DumpStats, error) {
	if codec == nil {
		codec = BinaryCMDCode{}
	}
	st, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		seq, cmd, err := codec.Decode(payload)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, formatCmd(seq, cmd))
		return err
	})
	return DumpStats{Records: st.Records, LastGoodOffset: st.LastGoodOffset, TruncatedTail: st.TruncatedTail}, err
}

// DumpOutbox 打印 ev.wal，CmdEnd 也打出来方便看命令边界
func DumpOutbox(w io.Writer, path string, codec EvCodec) (DumpStats, error) {
	if codec == nil {
		codec = EvCmdCodec{}
	}
	st, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		ev, err := codec.Decode(payload)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, formatEvent(ev))
		return err
	})
	return DumpStats{Records: st.Records, LastGoodOffset: st.LastGoodOffset, TruncatedTail: st.TruncatedTail}, err
}

func formatCmd(seq uint64, cmd Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d type=%s", seq, cmd.Type)
	if cmd.ReqID != 0 {
		fmt.Fprintf(&b, " req=%d", cmd.ReqID)
	}
	if !cmd.Signer.IsZero() {
		fmt.Fprintf(&b, " signer=%s", cmd.Signer)
	}
	switch cmd.Type {
	case CmdInitMarket:
		if p := cmd.Params; p != nil {
			fmt.Fprintf(&b, " base=%s quote=%s fees=%d/%d tick=%d lot=%d", p.BaseMint, p.QuoteMint, p.MakerFeeBps, p.TakerFeeBps, p.TickSize, p.BaseLotSize)
		}
	case CmdNewOrder:
		fmt.Fprintf(&b, " side=%s price=%d qty=%d post_only=%t", cmd.Side, cmd.Price, cmd.Qty, cmd.PostOnly)
	case CmdCancel:
		fmt.Fprintf(&b, " order=%d", cmd.OrderID)
	case CmdMatch:
		fmt.Fprintf(&b, " limit=%d accounts=%d", cmd.Limit, len(cmd.Accounts))
	case CmdCloseOpenOrders:
		if !cmd.Destination.IsZero() {
			fmt.Fprintf(&b, " dest=%s", cmd.Destination)
		}
	case CmdSetFees:
		fmt.Fprintf(&b, " maker=%d taker=%d", cmd.MakerFeeBps, cmd.TakerFeeBps)
	case CmdSetPause:
		fmt.Fprintf(&b, " paused=%t", cmd.Paused)
	case CmdReject:
		fmt.Fprintf(&b, " of=%d code=%d", cmd.RejectSeq, cmd.RejectCode)
	}
	return b.String()
}

func formatEvent(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d idx=%d type=%s", ev.Seq, ev.Idx, EventName(ev.Type))
	switch ev.Type {
	case EvCmdEnd:
		return b.String()
	case EvRejected:
		fmt.Fprintf(&b, " code=%d", ev.Code)
	case dex.EvTrade:
		fmt.Fprintf(&b, " bid=%d ask=%d price=%d qty=%d taker=%s", ev.BidOrderID, ev.AskOrderID, ev.Price, ev.Quantity, ev.Taker)
	case dex.EvFeeCollected:
		fmt.Fprintf(&b, " amount=%d", ev.Amount)
	default:
		if ev.OrderID != 0 {
			fmt.Fprintf(&b, " order=%d side=%s price=%d qty=%d", ev.OrderID, ev.Side, ev.Price, ev.Quantity)
		}
	}
	if !ev.Owner.IsZero() {
		fmt.Fprintf(&b, " owner=%s", ev.Owner)
	}
	return b.String()
}
