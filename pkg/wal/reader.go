package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
)

type ReaderOptions struct {
	MaxPayload         int
	AllowTruncatedTail bool
	BufferSize         int
}

// Reader 从某个 offset 往后读，可以跟着写者追尾：
// 干净的 io.EOF 之后再调 Next 会读到新追加的记录
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	off int64
	hdr [headerSize]byte

	maxPayload int
	allowTail  bool

	truncatedTail  bool
	lastGoodOffset int64
}

// OpenReader 文件不存在时返回 os.ErrNotExist
func OpenReader(path string, offset int64, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufSize
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	return &Reader{
		f:              f,
		br:             bufio.NewReaderSize(f, opts.BufferSize),
		off:            offset,
		maxPayload:     opts.MaxPayload,
		allowTail:      opts.AllowTruncatedTail,
		lastGoodOffset: offset,
	}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

// TruncatedTail 上一次 Next 停在了半截记录上
func (r *Reader) TruncatedTail() bool   { return r.truncatedTail }
func (r *Reader) LastGoodOffset() int64 { return r.lastGoodOffset }

// Next 返回下一条记录和它的末尾 offset；读完返回 io.EOF
// 半截记录：允许时也返回 io.EOF 并置 TruncatedTail，reader 需要从 LastGoodOffset 重开
func (r *Reader) Next() ([]byte, int64, error) {
	if _, err := io.ReadFull(r.br, r.hdr[:]); err != nil {
		return nil, r.off, r.torn(err, ErrCorruptHeader)
	}
	ln := binary.LittleEndian.Uint32(r.hdr[0:4])
	crc := binary.LittleEndian.Uint32(r.hdr[4:8])
	if int64(ln) > int64(r.maxPayload) {
		return nil, r.off, ErrPayloadTooLarge
	}

	payload := make([]byte, ln)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF // header 有了 payload 一个字节都没有，同样是半截
		}
		return nil, r.off, r.torn(err, ErrCorruptPayload)
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, r.off, ErrChecksumMismatch
	}
	r.off += int64(headerSize) + int64(ln)
	r.lastGoodOffset = r.off
	return payload, r.off, nil
}

func (r *Reader) torn(err, corrupt error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.truncatedTail = true
		if r.allowTail {
			return io.EOF
		}
		return corrupt
	case errors.Is(err, io.EOF):
		return io.EOF
	default:
		return err
	}
}
