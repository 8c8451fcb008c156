// Package wal 追加写的记录文件：[len:4][crc32:4][payload]，小端
// 命令日志和事件 outbox 都用它
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

const (
	headerSize      = 8
	defaultFilePerm = 0o644
	defaultBufSize  = 1 << 20
)

// DefaultMaxPayload 单条记录上限，坏的长度字段不至于把内存吃爆
const DefaultMaxPayload = 4 << 20

var (
	ErrCorruptHeader    = errors.New("wal: corrupt header")
	ErrCorruptPayload   = errors.New("wal: corrupt payload")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("wal: payload too large")
)

// Writer 非并发安全，一个文件只有一个写者（market actor）
type Writer struct {
	f   *os.File
	bw  *bufio.Writer
	off int64 // 逻辑末尾，含 bufio 里还没刷出去的部分
	hdr [headerSize]byte
}

// OpenWrite 以追加方式打开，父目录不存在会创建
func OpenWrite(path string, bufSize int) (*Writer, error) {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, bufSize), off: st.Size()}, nil
}

// Append 只进缓冲区；Flush 之后才算落盘
func (w *Writer) Append(payload []byte) error {
	if len(payload) > DefaultMaxPayload {
		return ErrPayloadTooLarge
	}
	binary.LittleEndian.PutUint32(w.hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(w.hdr[4:], crc32.ChecksumIEEE(payload))
	if _, err := w.bw.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("wal: write payload: %w", err)
	}
	w.off += int64(headerSize + len(payload))
	return nil
}

// Offset 下一条记录的起点
func (w *Writer) Offset() int64 { return w.off }

// Flush 刷缓冲并 fsync
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

type ReplayOptions struct {
	MaxPayload int // <=0 用 DefaultMaxPayload
	// 最后一条记录写了一半时当作正常结束，崩溃恢复时应该打开
	AllowTruncatedTail bool
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64 // 最后一条完整记录的末尾
	TruncatedTail  bool
}

// Replay 从头顺序读，每条完整记录回调一次；文件不存在视为空
func Replay(path string, opts ReplayOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	r, err := OpenReader(path, 0, ReaderOptions{MaxPayload: opts.MaxPayload, AllowTruncatedTail: opts.AllowTruncatedTail})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer r.Close()

	for {
		payload, _, err := r.Next()
		st.LastGoodOffset = r.LastGoodOffset()
		st.TruncatedTail = r.TruncatedTail()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return st, err
		}
		if err := onRecord(payload); err != nil {
			return st, err
		}
		st.Records++
	}
}

// TruncateTo 砍掉 offset 之后的半截记录；offset 不小于文件长度时什么都不做
func TruncateTo(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("wal: negative truncate offset %d", offset)
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if offset >= st.Size() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return err
	}
	return f.Sync()
}
