package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"gopherdex.com/pkg/wal"
)

type Outbox interface {
	Append(ev Event) error
	AppendCmdEnd(seq uint64) error
	Flush() error
	Close() error
}

type EventOutbox struct {
	path   string
	w      *wal.Writer
	codec  EvCodec
	binBuf []byte
}

func OpenEventOutbox(path string, bufSize int, codec EvCodec) (*EventOutbox, error) {
	wr, err := wal.OpenWrite(path, bufSize)
	if err != nil {
		return nil, err
	}
	return &EventOutbox{path: path, w: wr, codec: codec, binBuf: make([]byte, 0, evRecordLen)}, nil
}

func (o *EventOutbox) Append(ev Event) error {
	// binary 复用 buffer；json 用小 slice（可读为主）
	var dst []byte
	switch o.codec.(type) {
	case JSONEvCodec:
		dst = make([]byte, 0, 512)
	default:
		dst = o.binBuf[:0]
	}
	payload, err := o.codec.Encode(dst, ev)
	if err != nil {
		return err
	}
	return o.w.Append(payload)
}

func (o *EventOutbox) AppendCmdEnd(seq uint64) error {
	return o.Append(Event{Event: cmdEndEvent(), Seq: seq})
}

func (o *EventOutbox) Flush() error { return o.w.Flush() }
func (o *EventOutbox) Close() error { return o.w.Close() }

// ScanAndRepairOutbox 找到最后一个完整命令边界，截掉后面的半截数据
func ScanAndRepairOutbox(path string, codec EvCodec) (lastCompleteSeq uint64, lastCompleteOffset int64, err error) {
	// 文件不存在：正常
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return 0, 0, nil
	}
	r, err := wal.OpenReader(path, 0, wal.ReaderOptions{
		AllowTruncatedTail: true,
	})
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	for {
		p, nextOff, e := r.Next()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return 0, 0, e
		}
		ev, err := codec.Decode(p)
		if err != nil {
			return 0, 0, err
		}
		if ev.Type == EvCmdEnd {
			lastCompleteSeq = ev.Seq
			lastCompleteOffset = nextOff
		}
	}

	// 没有 CmdEnd 的残留事件也一起截掉（命令边界一致性）
	st, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	if st.Size() > lastCompleteOffset {
		if err := wal.TruncateTo(path, lastCompleteOffset); err != nil {
			return 0, 0, err
		}
	}
	return lastCompleteSeq, lastCompleteOffset, nil
}

// WALPaths 某个市场的命令日志和事件 outbox 文件
func WALPaths(walDir, market string) (cmd, outbox string) {
	return cmdWalPath(walDir, market), outboxWalPath(walDir, market)
}

func cmdWalPath(walDir, market string) string {
	return filepath.Join(walDir, safeName(market)+".cmd.wal")
}

func outboxCursorPath(walDir, market string) string {
	return filepath.Join(walDir, safeName(market)+".ev.cursor")
}

func outboxWalPath(walDir, market string) string {
	return filepath.Join(walDir, safeName(market)+".ev.wal")
}

// cursor 文件：8 字节 little endian offset
func loadCursor(path string) int64 {
	b, err := os.ReadFile(path)
	if err != nil || len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:8]))
}

func storeCursor(path string, off int64) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(off))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// 市场地址是 base58，本来就安全；这里兜底
func safeName(name string) string {
	sb := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '_' || r == '-' {
			sb = append(sb, r)
		} else {
			sb = append(sb, '_')
		}
	}
	return string(sb)
}
