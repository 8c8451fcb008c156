package engine

import (
	"encoding/binary"
	"errors"

	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/matching"
)

// ev.wal 定长记录：
//
//	[ver:1][type:1][seq:8][idx:2][reqID:8][code:4]
//	[market:32][owner:32][orderID:8][side:1][price:8][qty:8]
//	[taker:32][makerBid:32][makerAsk:32][bidOrderID:8][askOrderID:8][amount:8]
//	[makerFee:2][takerFee:2][paused:1][baseMint:32][quoteMint:32][tick:8][lot:8]
const (
	evWalVersion = 3
	evRecordLen  = 1 + 1 + 8 + 2 + 8 + 4 +
		32 + 32 + 8 + 1 + 8 + 8 +
		32 + 32 + 32 + 8 + 8 + 8 +
		2 + 2 + 1 + 32 + 32 + 8 + 8
)

var (
	ErrBadEvRecordLen = errors.New("outbox: bad record length")
	ErrBadEvVersion   = errors.New("outbox: bad version")
)

type EvCmdCodec struct{}

func (EvCmdCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	dst = dst[:0]
	dst = append(dst, evWalVersion, byte(ev.Type))
	dst = binary.LittleEndian.AppendUint64(dst, ev.Seq)
	dst = binary.LittleEndian.AppendUint16(dst, ev.Idx)
	dst = binary.LittleEndian.AppendUint64(dst, ev.ReqID)
	dst = binary.LittleEndian.AppendUint32(dst, ev.Code)

	dst = putKey(dst, ev.Market)
	dst = putKey(dst, ev.Owner)
	dst = binary.LittleEndian.AppendUint64(dst, ev.OrderID)
	dst = append(dst, byte(ev.Side))
	dst = binary.LittleEndian.AppendUint64(dst, ev.Price)
	dst = binary.LittleEndian.AppendUint64(dst, ev.Quantity)

	dst = putKey(dst, ev.Taker)
	dst = putKey(dst, ev.MakerBid)
	dst = putKey(dst, ev.MakerAsk)
	dst = binary.LittleEndian.AppendUint64(dst, ev.BidOrderID)
	dst = binary.LittleEndian.AppendUint64(dst, ev.AskOrderID)
	dst = binary.LittleEndian.AppendUint64(dst, ev.Amount)

	dst = binary.LittleEndian.AppendUint16(dst, ev.MakerFeeBps)
	dst = binary.LittleEndian.AppendUint16(dst, ev.TakerFeeBps)
	dst = putBool(dst, ev.Paused)
	dst = putKey(dst, ev.BaseMint)
	dst = putKey(dst, ev.QuoteMint)
	dst = binary.LittleEndian.AppendUint64(dst, ev.TickSize)
	dst = binary.LittleEndian.AppendUint64(dst, ev.BaseLotSize)
	return dst, nil
}

func (EvCmdCodec) Decode(payload []byte) (Event, error) {
	if len(payload) != evRecordLen {
		return Event{}, ErrBadEvRecordLen
	}
	r := &recReader{b: payload}
	if r.u8() != evWalVersion {
		return Event{}, ErrBadEvVersion
	}

	var ev Event
	ev.Type = dex.EventType(r.u8())
	ev.Seq = r.u64()
	ev.Idx = r.u16()
	ev.ReqID = r.u64()
	ev.Code = r.u32()

	ev.Market = r.key()
	ev.Owner = r.key()
	ev.OrderID = r.u64()
	ev.Side = matching.Side(r.u8())
	ev.Price = r.u64()
	ev.Quantity = r.u64()

	ev.Taker = r.key()
	ev.MakerBid = r.key()
	ev.MakerAsk = r.key()
	ev.BidOrderID = r.u64()
	ev.AskOrderID = r.u64()
	ev.Amount = r.u64()

	ev.MakerFeeBps = r.u16()
	ev.TakerFeeBps = r.u16()
	ev.Paused = r.flag()
	ev.BaseMint = r.key()
	ev.QuoteMint = r.key()
	ev.TickSize = r.u64()
	ev.BaseLotSize = r.u64()
	if r.err != nil {
		return Event{}, r.err
	}
	return ev, nil
}
