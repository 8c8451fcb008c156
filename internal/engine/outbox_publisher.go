package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/wal"
)

// OutboxPublisher tail ev.wal，把事件按顺序推到 bus
// cursor 只在命令边界推进，重启后从最后一个完整命令之后继续（至少一次）
type OutboxPublisher struct {
	ctx        context.Context
	bus        Bus
	evPath     string
	cursorPath string
	notify     <-chan struct{}
	evCodec    EvCodec
	poll       time.Duration
}

func NewOutboxPublisher(ctx context.Context, bus Bus, evPath, cursorPath string, notify <-chan struct{}, poll time.Duration, evCodec EvCodec) *OutboxPublisher {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &OutboxPublisher{
		ctx:        ctx,
		bus:        bus,
		evPath:     evPath,
		cursorPath: cursorPath,
		notify:     notify,
		poll:       poll,
		evCodec:    evCodec,
	}
}

func (p *OutboxPublisher) Run() {
	committed := loadCursor(p.cursorPath)
	// cursor 可能大于文件大小（修复/截断过），需要矫正
	if st, err := os.Stat(p.evPath); err == nil && committed > st.Size() {
		committed = st.Size()
		if err = storeCursor(p.cursorPath, committed); err != nil {
			logger.Error(p.ctx, "outbox cursor reset failed", zap.String("path", p.cursorPath), zap.Error(err))
			return
		}
	}

	var r *wal.Reader
	defer func() {
		if r != nil {
			_ = r.Close()
		}
	}()
	reset := func() {
		if r != nil {
			_ = r.Close()
			r = nil
		}
	}

	// off 下一条待处理记录的起点；发布失败时从这里重读，已发布的不会重复
	off := committed
	for p.ctx.Err() == nil {
		if r == nil {
			var err error
			r, err = wal.OpenReader(p.evPath, off, wal.ReaderOptions{AllowTruncatedTail: true})
			if err != nil {
				r = nil
				if !errors.Is(err, os.ErrNotExist) {
					logger.Warn(p.ctx, "outbox open failed", zap.String("path", p.evPath), zap.Error(err))
				}
				p.wait()
				continue
			}
		}

		payload, nextOff, err := r.Next()
		if err != nil {
			// 干净的 EOF：留着 reader 等新数据；读到半截记录要从 off 重开
			if errors.Is(err, io.EOF) && !r.TruncatedTail() {
				p.wait()
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.Warn(p.ctx, "outbox read failed", zap.String("path", p.evPath), zap.Error(err))
			}
			reset()
			p.wait()
			continue
		}

		ev, err := p.evCodec.Decode(payload)
		if err != nil {
			logger.Error(p.ctx, "outbox decode failed", zap.String("path", p.evPath), zap.Int64("offset", off), zap.Error(err))
			reset()
			p.wait()
			continue
		}

		// CmdEnd：不发布，cursor 落盘
		if ev.Type == EvCmdEnd {
			off = nextOff
			if err := storeCursor(p.cursorPath, off); err != nil {
				logger.Warn(p.ctx, "outbox cursor store failed", zap.Error(err))
			}
			continue
		}

		// 阻塞发布（Publisher 不在撮合线程里，允许阻塞）
		if err := p.bus.Publish(p.ctx, ev); err != nil {
			reset()
			p.wait()
			continue
		}
		off = nextOff
	}
}

func (p *OutboxPublisher) wait() {
	t := time.NewTimer(p.poll)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
	case <-p.notify:
	case <-t.C:
	}
}
