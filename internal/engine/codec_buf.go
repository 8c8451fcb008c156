package engine

import (
	"encoding/binary"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var errShortRecord = errors.New("record truncated")

// 二进制记录统一小端；定长头 + 变长尾

func putKey(dst []byte, k solana.PublicKey) []byte { return append(dst, k[:]...) }

func putBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// recReader 顺序读，出错后所有读都返回零值，最后检查 err
type recReader struct {
	b   []byte
	off int
	err error
}

func (r *recReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b)-r.off < n {
		r.err = errShortRecord
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *recReader) u8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *recReader) flag() bool { return r.u8() == 1 }

func (r *recReader) u16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *recReader) u32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *recReader) u64() uint64 {
	p := r.take(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (r *recReader) key() (k solana.PublicKey) {
	p := r.take(32)
	if p != nil {
		copy(k[:], p)
	}
	return k
}

func (r *recReader) rest() int { return len(r.b) - r.off }
