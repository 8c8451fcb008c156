package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"gopherdex.com/internal/dex"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
)

type ActorConfig struct {
	MailboxSize   int    // 有多少个mail处理
	BatchMax      int    // 一次最多多少
	SnapshotEvery uint64 // 每多少条命令存一次快照；0 不存
}

type reply struct {
	res Result
	err error
}

// envelope reply 为 nil 时是“入队即返回”
type envelope struct {
	cmd   Command
	reply chan reply
}

// MarketActor 一个市场一个 goroutine：串行执行该市场的全部命令
type MarketActor struct {
	market string
	proc   *dex.Processor
	in     chan envelope
	cfg    ActorConfig

	seq      uint64 // 最后分配的命令序号
	snapSeq  uint64 // 最后一次快照对应的序号
	view     atomic.Pointer[dex.View]
	dead     atomic.Bool
	done     chan struct{}
	encBuf   []byte
	pending  []reply
	rejected int

	// metrics
	mailboxFull uint64

	wal       walWriter
	outbox    Outbox
	sink      EventSink     // 没有 outbox 时直接投递
	pubNotify chan struct{} // buffered=1，用于通知 Publisher “有新事件了”
	cmdCodec  CmdCodec
	snaps     SnapshotStore
}

func NewMarketActor(market string, proc *dex.Processor, cfg ActorConfig, wal walWriter,
	ob Outbox,
	pubNotify chan struct{},
	cmdCodec CmdCodec,
) *MarketActor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	if pubNotify == nil {
		pubNotify = make(chan struct{}, 1)
	}
	if cmdCodec == nil {
		cmdCodec = BinaryCMDCode{}
	}
	a := &MarketActor{
		market:    market,
		proc:      proc,
		in:        make(chan envelope, cfg.MailboxSize),
		cfg:       cfg,
		done:      make(chan struct{}),
		wal:       wal,
		outbox:    ob,
		pubNotify: pubNotify,
		cmdCodec:  cmdCodec,
	}
	a.publishView()
	return a
}

func (a *MarketActor) Market() string { return a.market }

// TryEnqueue chan 满了直接拒绝，调用方自己退避
func (a *MarketActor) TryEnqueue(cmd Command) error {
	return a.enqueue(envelope{cmd: cmd})
}

func (a *MarketActor) enqueue(env envelope) error {
	if a.dead.Load() {
		return ErrActorDead
	}
	select {
	case a.in <- env:
		return nil
	default:
		atomic.AddUint64(&a.mailboxFull, 1)
		metrics.EngineMailboxFullTotal.WithLabelValues(a.market).Inc()
		return ErrEngineBusy
	}
}

// Submit 入队并等待执行结果；结果在 WAL 和 outbox 都落盘后才返回
func (a *MarketActor) Submit(ctx context.Context, cmd Command) (Result, error) {
	ch := make(chan reply, 1)
	if err := a.enqueue(envelope{cmd: cmd, reply: ch}); err != nil {
		return Result{}, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-a.done:
		// actor 退出前可能已经回了
		select {
		case r := <-ch:
			return r.res, r.err
		default:
		}
		return Result{}, ErrActorDead
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (a *MarketActor) MailboxFull() uint64 { return atomic.LoadUint64(&a.mailboxFull) }

// View 最近一批命令之后的只读快照；市场未初始化时为 nil
func (a *MarketActor) View() *dex.View { return a.view.Load() }

func (a *MarketActor) Seq() uint64 { return atomic.LoadUint64(&a.seq) }

func (a *MarketActor) Done() <-chan struct{} { return a.done }

func (a *MarketActor) publishView() {
	if v, err := a.proc.View(); err == nil {
		a.view.Store(v)
	}
}

func (a *MarketActor) Run(ctx context.Context) {
	defer close(a.done)
	defer a.dead.Store(true)
	if a.wal != nil {
		defer a.wal.Close()
	}
	if a.outbox != nil {
		defer a.outbox.Close()
	}

	// 复用 batch slice，避免每轮分配
	batch := make([]envelope, 0, a.cfg.BatchMax)
	seqs := make([]uint64, 0, a.cfg.BatchMax)
	for {
		var first envelope
		// 先阻塞拿 1 条，再尽量多拿几条（不阻塞）
		select {
		case <-ctx.Done():
			a.drain(ErrEngineStopped)
			return
		case first = <-a.in:
		}
		batch = batch[:0]
		batch = append(batch, first)
		for len(batch) < a.cfg.BatchMax {
			select {
			case env := <-a.in:
				batch = append(batch, env)
				continue
			default:
			}
			break
		}
		metrics.EngineBatchSize.Observe(float64(len(batch)))

		if !a.process(ctx, batch, seqs[:0]) {
			// 持久化失败：停掉 actor，重启后靠 cmd.wal 恢复
			a.drain(ErrActorDead)
			return
		}
	}
}

// process 一批命令：先全部写 WAL，再逐条执行；返回 false 表示持久化失败
func (a *MarketActor) process(ctx context.Context, batch []envelope, seqs []uint64) bool {
	// ---------- Phase 1: WAL ----------
	for i := range batch {
		seq := atomic.AddUint64(&a.seq, 1)
		seqs = append(seqs, seq)
		if a.wal == nil {
			continue
		}
		payload, err := a.cmdCodec.Encode(a.encBuf[:0], seq, batch[i].cmd)
		if err != nil {
			// 编码不了的命令照样占一个 seq，下面直接拒掉
			logger.Warn(ctx, "encode command failed", zap.String("market", a.market), zap.Uint64("seq", seq), zap.Error(err))
			batch[i].cmd.Type = 0
			continue
		}
		a.encBuf = payload
		if err := a.wal.Append(payload); err != nil {
			a.failBatch(ctx, batch, "cmd wal append", err)
			return false
		}
	}
	if a.wal != nil {
		if err := a.wal.Flush(); err != nil {
			a.failBatch(ctx, batch, "cmd wal flush", err)
			return false
		}
	}

	// ---------- Phase 2: Apply + Outbox ----------
	a.pending = a.pending[:0]
	a.rejected = 0
	var direct []Event
	for i := range batch {
		cmd, seq := batch[i].cmd, seqs[i]
		em := &outboxEmitter{out: a.outbox, seq: seq, req: cmd.ReqID}

		var (
			res Result
			err error
		)
		if cmd.Type == CmdReject || !cmd.Type.valid() {
			err = fmt.Errorf("%w: type %d", ErrBadCommand, cmd.Type)
		} else {
			res, err = apply(ctx, a.proc, dex.Op{Seq: seq, Emit: em}, cmd)
		}
		if err != nil {
			code := rejectCode(err)
			em.reject(rejectEvent(a.market, cmd), code)
			if !a.markRejected(ctx, seq, code) {
				a.failBatch(ctx, batch[i:], "cmd wal reject", err)
				return false
			}
			metrics.EngineCommandTotal.WithLabelValues(a.market, cmd.Type.String(), "reject").Inc()
		} else {
			metrics.EngineCommandTotal.WithLabelValues(a.market, cmd.Type.String(), "ok").Inc()
			a.observe(em.collect)
		}
		// outbox 写事件失败：直接停止（重启会靠 cmd.wal 补齐 outbox）
		if em.err != nil {
			a.failBatch(ctx, batch[i:], "outbox append", em.err)
			return false
		}
		if a.outbox != nil {
			if err := a.outbox.AppendCmdEnd(seq); err != nil {
				a.failBatch(ctx, batch[i:], "outbox cmd end", err)
				return false
			}
		} else if a.sink != nil {
			direct = append(direct, em.collect...)
		}
		res.Seq = seq
		res.Events = em.collect
		a.pending = append(a.pending, reply{res: res, err: err})
	}

	// batch 末尾：组提交
	if a.wal != nil && a.rejected > 0 {
		if err := a.wal.Flush(); err != nil {
			a.failBatch(ctx, batch, "cmd wal flush", err)
			return false
		}
	}
	if a.outbox != nil {
		if err := a.outbox.Flush(); err != nil {
			a.failBatch(ctx, batch, "outbox flush", err)
			return false
		}
		select {
		case a.pubNotify <- struct{}{}:
		default:
		}
	}
	for _, ev := range direct {
		a.sink.TryPublish(ev)
	}

	a.publishView()
	a.maybeSnapshot(ctx)

	for i := range batch {
		if batch[i].reply != nil {
			batch[i].reply <- a.pending[i]
		}
	}
	return true
}

// markRejected 在 cmd.wal 里记下失败的 seq，回放时跳过它
func (a *MarketActor) markRejected(ctx context.Context, seq uint64, code uint32) bool {
	a.rejected++
	if a.wal == nil {
		return true
	}
	payload, err := a.cmdCodec.Encode(a.encBuf[:0], seq, Command{Type: CmdReject, RejectSeq: seq, RejectCode: code})
	if err != nil {
		logger.Error(ctx, "encode reject marker failed", zap.String("market", a.market), zap.Error(err))
		return false
	}
	a.encBuf = payload
	return a.wal.Append(payload) == nil
}

func (a *MarketActor) observe(evs []Event) {
	for _, ev := range evs {
		switch ev.Type {
		case dex.EvTrade:
			metrics.TradeTotal.WithLabelValues(a.market).Inc()
		case dex.EvFeeCollected:
			metrics.FeeVolume.WithLabelValues(a.market).Add(float64(ev.Amount))
		}
	}
}

func (a *MarketActor) maybeSnapshot(ctx context.Context) {
	if a.snaps == nil || a.cfg.SnapshotEvery == 0 || !a.proc.Initialized() {
		return
	}
	seq := atomic.LoadUint64(&a.seq)
	if seq-a.snapSeq < a.cfg.SnapshotEvery {
		return
	}
	data, err := a.proc.Snapshot()
	if err == nil {
		err = a.snaps.Save(a.market, seq, data)
	}
	if err != nil {
		// 快照失败不影响正确性，只是回放更久
		logger.Warn(ctx, "snapshot failed", zap.String("market", a.market), zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	a.snapSeq = seq
}

func (a *MarketActor) failBatch(ctx context.Context, batch []envelope, stage string, err error) {
	a.dead.Store(true)
	logger.Error(ctx, "market actor persistence failure",
		zap.String("market", a.market), zap.String("stage", stage), zap.Error(err))
	for i := range batch {
		if batch[i].reply != nil {
			batch[i].reply <- reply{err: ErrActorDead}
		}
	}
}

// drain 退出时把还在 mailbox 里等结果的调用方放掉
func (a *MarketActor) drain(err error) {
	a.dead.Store(true)
	for {
		select {
		case env := <-a.in:
			if env.reply != nil {
				env.reply <- reply{err: err}
			}
		default:
			return
		}
	}
}
