package engine

import (
	"encoding/binary"
	"errors"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/matching"
)

// cmd.wal 记录：
//
//	[ver:1][type:1][seq:8][reqID:8][clientTs:8][signer:32]
//	[side:1][price:8][qty:8][postOnly:1][orderID:8][limit:4][destination:32]
//	[maker:2][taker:2][paused:1][rejectSeq:8][rejectCode:4]
//	[nAccounts:2][accounts:32*n][hasParams:1][params:paramsLen]
const (
	cmdWalVersion = 2
	cmdHeadLen    = 1 + 1 + 8 + 8 + 8 + 32 + 1 + 8 + 8 + 1 + 8 + 4 + 32 + 2 + 2 + 1 + 8 + 4
	paramsLen     = 32*2 + 1 + 1 + 2 + 2 + 8*6 + 32*3
	maxAccounts   = 1 << 10
)

var (
	ErrBadCmdRecordLen = errors.New("wal cmd: bad record length")
	ErrBadCmdVersion   = errors.New("wal cmd: bad version")
	ErrBadCmdType      = errors.New("wal cmd: bad cmd type")
)

type BinaryCMDCode struct{}

func (BinaryCMDCode) Encode(dst []byte, seq uint64, cmd Command) ([]byte, error) {
	if len(cmd.Accounts) > maxAccounts {
		return nil, ErrBadCmdRecordLen
	}
	dst = dst[:0]
	dst = append(dst, cmdWalVersion, byte(cmd.Type))
	dst = binary.LittleEndian.AppendUint64(dst, seq)
	dst = binary.LittleEndian.AppendUint64(dst, cmd.ReqID)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(cmd.ClientTs))
	dst = putKey(dst, cmd.Signer)

	dst = append(dst, byte(cmd.Side))
	dst = binary.LittleEndian.AppendUint64(dst, cmd.Price)
	dst = binary.LittleEndian.AppendUint64(dst, cmd.Qty)
	dst = putBool(dst, cmd.PostOnly)
	dst = binary.LittleEndian.AppendUint64(dst, cmd.OrderID)
	dst = binary.LittleEndian.AppendUint32(dst, cmd.Limit)
	dst = putKey(dst, cmd.Destination)

	dst = binary.LittleEndian.AppendUint16(dst, cmd.MakerFeeBps)
	dst = binary.LittleEndian.AppendUint16(dst, cmd.TakerFeeBps)
	dst = putBool(dst, cmd.Paused)
	dst = binary.LittleEndian.AppendUint64(dst, cmd.RejectSeq)
	dst = binary.LittleEndian.AppendUint32(dst, cmd.RejectCode)

	// 变长尾
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(cmd.Accounts)))
	for _, k := range cmd.Accounts {
		dst = putKey(dst, k)
	}
	dst = putBool(dst, cmd.Params != nil)
	if p := cmd.Params; p != nil {
		dst = putKey(dst, p.BaseMint)
		dst = putKey(dst, p.QuoteMint)
		dst = append(dst, p.BaseDecimals, p.QuoteDecimals)
		dst = binary.LittleEndian.AppendUint16(dst, p.MakerFeeBps)
		dst = binary.LittleEndian.AppendUint16(dst, p.TakerFeeBps)
		for _, v := range []uint64{p.TickSize, p.BaseLotSize, p.MinBaseQty, p.MinNotional, p.PriceScale, p.OpenOrdersDeposit} {
			dst = binary.LittleEndian.AppendUint64(dst, v)
		}
		dst = putKey(dst, p.BaseVault)
		dst = putKey(dst, p.QuoteVault)
		dst = putKey(dst, p.FeeVault)
	}
	return dst, nil
}

func (BinaryCMDCode) Decode(payload []byte) (seq uint64, cmd Command, err error) {
	if len(payload) < cmdHeadLen+3 {
		return 0, Command{}, ErrBadCmdRecordLen
	}
	r := &recReader{b: payload}
	if r.u8() != cmdWalVersion {
		return 0, Command{}, ErrBadCmdVersion
	}
	cmd.Type = CmdType(r.u8())
	if !cmd.Type.valid() && cmd.Type != CmdReject {
		return 0, Command{}, ErrBadCmdType
	}
	seq = r.u64()
	cmd.ReqID = r.u64()
	cmd.ClientTs = int64(r.u64())
	cmd.Signer = r.key()

	cmd.Side = matching.Side(r.u8())
	cmd.Price = r.u64()
	cmd.Qty = r.u64()
	cmd.PostOnly = r.flag()
	cmd.OrderID = r.u64()
	cmd.Limit = r.u32()
	cmd.Destination = r.key()

	cmd.MakerFeeBps = r.u16()
	cmd.TakerFeeBps = r.u16()
	cmd.Paused = r.flag()
	cmd.RejectSeq = r.u64()
	cmd.RejectCode = r.u32()

	if n := int(r.u16()); n > 0 {
		if n > maxAccounts {
			return 0, Command{}, ErrBadCmdRecordLen
		}
		cmd.Accounts = make([]solana.PublicKey, n)
		for i := range cmd.Accounts {
			cmd.Accounts[i] = r.key()
		}
	}
	if r.flag() {
		if r.rest() != paramsLen {
			return 0, Command{}, ErrBadCmdRecordLen
		}
		p := &dex.MarketParams{}
		p.BaseMint = r.key()
		p.QuoteMint = r.key()
		p.BaseDecimals = r.u8()
		p.QuoteDecimals = r.u8()
		p.MakerFeeBps = r.u16()
		p.TakerFeeBps = r.u16()
		p.TickSize = r.u64()
		p.BaseLotSize = r.u64()
		p.MinBaseQty = r.u64()
		p.MinNotional = r.u64()
		p.PriceScale = r.u64()
		p.OpenOrdersDeposit = r.u64()
		p.BaseVault = r.key()
		p.QuoteVault = r.key()
		p.FeeVault = r.key()
		cmd.Params = p
	}
	if r.err != nil || r.rest() != 0 {
		return 0, Command{}, ErrBadCmdRecordLen
	}
	return seq, cmd, nil
}
