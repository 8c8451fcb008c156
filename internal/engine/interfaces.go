package engine

import "context"

// EventSink：下游“可能慢”，所以只提供 TryPublish（非阻塞）
type EventSink interface {
	TryPublish(ev Event) bool
}

// Bus publisher 用的阻塞发布
type Bus interface {
	Publish(ctx context.Context, ev Event) error
}

type CmdCodec interface {
	Encode(dst []byte, seq uint64, cmd Command) ([]byte, error)
	Decode(payload []byte) (seq uint64, cmd Command, err error)
}

type EvCodec interface {
	Encode(dst []byte, ev Event) ([]byte, error)
	Decode(payload []byte) (Event, error)
}

type walWriter interface {
	Append(payload []byte) error
	Flush() error
	Close() error
}

// SnapshotStore 按市场保存最近一次状态快照及其对应的命令序号
type SnapshotStore interface {
	Save(market string, seq uint64, state []byte) error
	Load(market string) (seq uint64, state []byte, ok bool, err error)
	Close() error
}
