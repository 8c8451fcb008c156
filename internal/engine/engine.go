package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"gopherdex.com/internal/dex"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/safe"
	"gopherdex.com/pkg/wal"
)

/*
*
一个市场一个 actor，负责把请求分到对应的 actor 去执行
*/
type EngineConfig struct {
	ProgramID       solana.PublicKey // 派生地址用
	Ledger          dex.TokenLedger  // 代币账本，nil 时不记账
	ReplayLedger    dex.TokenLedger  // 回放 WAL 时用的账本，nil 时用 Ledger（要求按 key 幂等）
	Snapshots       SnapshotStore    // nil 时不存快照
	EventBusSize    int              // event的size
	ActorCfg        ActorConfig      //act的配重
	WALDir          string           // 文件地址
	EnableCmdWAL    bool             // 是否打开写入
	WALBufSize      int              // wal的大小
	EnableOutbox    bool             // 是否开启outBox
	OutboxBufSize   int              // outbox的大小
	EnablePublisher bool             // 是否开启publisher
	PublisherPoll   time.Duration    //pulibsh的时间
	CmdCodec        CmdCodec
	EvCodec         EvCodec
	Bus             *ChanBus
}

type Engine struct {
	ctx    context.Context         //  ctx
	cancel context.CancelFunc      //取消事件
	mu     sync.RWMutex            // 读锁
	actors map[string]*MarketActor // 一一对应
	bus    *ChanBus
	cfg    EngineConfig
	wg     sync.WaitGroup
}

func NewEngine(cfg EngineConfig) *Engine {
	// 如果没有设置  就默认
	if cfg.EventBusSize <= 0 {
		cfg.EventBusSize = 1 << 16
	}
	if cfg.Bus == nil {
		cfg.Bus = NewChanBus(cfg.EventBusSize)
	}
	if cfg.CmdCodec == nil {
		cfg.CmdCodec = BinaryCMDCode{}
	}
	if cfg.EvCodec == nil {
		cfg.EvCodec = EvCmdCodec{}
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = dex.DefaultProgramID
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*MarketActor),
		bus:    cfg.Bus,
		cfg:    cfg,
	}
}

// 这个是推送事件
func (e *Engine) Events() <-chan Event { return e.bus.C() }

// 下游太慢被丢掉的事件数
func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

func (e *Engine) ProgramID() solana.PublicKey { return e.cfg.ProgramID }

func (e *Engine) persistent() bool {
	return e.cfg.EnableCmdWAL || e.cfg.EnableOutbox || e.cfg.EnablePublisher
}

// CreateMarket 建市场；市场地址由两个 mint 派生，重复创建返回 MarketAlreadyInitialized
func (e *Engine) CreateMarket(ctx context.Context, payer solana.PublicKey, params dex.MarketParams) (dex.Market, error) {
	addr, err := dex.MarketAddress(e.cfg.ProgramID, params.BaseMint, params.QuoteMint)
	if err != nil {
		return dex.Market{}, err
	}
	a, err := e.getOrCreateActor(addr.String())
	if err != nil {
		return dex.Market{}, err
	}
	res, err := a.Submit(ctx, Command{Type: CmdInitMarket, Signer: payer, Params: &params})
	if err != nil {
		return dex.Market{}, err
	}
	return res.Market, nil
}

// Recover 启动时把 WALDir 下已有的市场都拉起来
func (e *Engine) Recover(ctx context.Context) error {
	if !e.cfg.EnableCmdWAL || e.cfg.WALDir == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(e.cfg.WALDir, "*.cmd.wal"))
	if err != nil {
		return err
	}
	for _, p := range paths {
		market := strings.TrimSuffix(filepath.Base(p), ".cmd.wal")
		if _, err := parseKey(market); err != nil {
			logger.Warn(ctx, "skip unknown wal file", zap.String("path", p))
			continue
		}
		a, err := e.getOrCreateActor(market)
		if err != nil {
			return fmt.Errorf("recover %s: %w", market, err)
		}
		logger.Info(ctx, "market recovered", zap.String("market", market), zap.Uint64("seq", a.Seq()))
	}
	return nil
}

func (e *Engine) actor(market string) (*MarketActor, error) {
	e.mu.RLock()
	a := e.actors[market]
	e.mu.RUnlock()
	if a == nil {
		return nil, ErrUnknownMarket
	}
	return a, nil
}

// Do 同步执行一条命令，等到落盘和执行结果
func (e *Engine) Do(ctx context.Context, market string, cmd Command) (Result, error) {
	if !cmd.Type.valid() || cmd.Type == CmdInitMarket {
		return Result{}, ErrBadCommand
	}
	a, err := e.actor(market)
	if err != nil {
		return Result{}, err
	}
	return a.Submit(ctx, cmd)
}

// TryEnqueue 只入队不等结果，结果从事件流里拿
func (e *Engine) TryEnqueue(market string, cmd Command) error {
	if !cmd.Type.valid() || cmd.Type == CmdInitMarket {
		return ErrBadCommand
	}
	a, err := e.actor(market)
	if err != nil {
		return err
	}
	return a.TryEnqueue(cmd)
}

// View 最近一次提交后的只读视图
func (e *Engine) View(market string) (*dex.View, error) {
	a, err := e.actor(market)
	if err != nil {
		return nil, err
	}
	v := a.View()
	if v == nil {
		return nil, ErrUnknownMarket
	}
	return v, nil
}

// Markets 已初始化的市场，按地址排序
func (e *Engine) Markets() []dex.Market {
	e.mu.RLock()
	out := make([]dex.Market, 0, len(e.actors))
	for _, a := range e.actors {
		if v := a.View(); v != nil {
			out = append(out, v.Market)
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out
}

// Stop 停掉所有 actor 和 publisher，等它们把文件关好
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) getOrCreateActor(market string) (*MarketActor, error) {
	// 1) 快路径：读锁查
	e.mu.RLock()
	a := e.actors[market]
	e.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	// 2) 慢路径：写锁双检 + 创建
	e.mu.Lock()
	defer e.mu.Unlock()
	if a = e.actors[market]; a != nil {
		return a, nil
	}
	if e.ctx.Err() != nil {
		return nil, ErrEngineStopped
	}

	// 只要开启持久化相关能力，WALDir 必须配置
	if e.persistent() && e.cfg.WALDir == "" {
		return nil, fmt.Errorf("WALDir is empty but persistence is enabled")
	}
	if e.persistent() {
		if err := os.MkdirAll(e.cfg.WALDir, 0o755); err != nil {
			return nil, err
		}
	}
	cmdPath := cmdWalPath(e.cfg.WALDir, market)       // <m>.cmd.wal
	evPath := outboxWalPath(e.cfg.WALDir, market)     // <m>.ev.wal
	curPath := outboxCursorPath(e.cfg.WALDir, market) // <m>.ev.cursor

	replayLedger := e.cfg.ReplayLedger
	if replayLedger == nil {
		replayLedger = e.cfg.Ledger
	}
	proc := dex.NewProcessor(e.cfg.ProgramID, replayLedger)

	// outbox 里“最后一个完整命令边界”的 seq
	var (
		lastCompleteSeq uint64
		outboxWriter    Outbox
		err             error
	)
	pubNotify := make(chan struct{}, 1)
	if e.cfg.EnableOutbox {
		lastCompleteSeq, _, err = ScanAndRepairOutbox(evPath, e.cfg.EvCodec)
		if err != nil {
			return nil, err
		}
		outboxWriter, err = OpenEventOutbox(evPath, e.cfg.OutboxBufSize, e.cfg.EvCodec)
		if err != nil {
			return nil, err
		}
	}

	// 快照只在 outbox 落盘之后才写，所以一般 snapSeq <= lastCompleteSeq
	var snapSeq uint64
	if e.cfg.Snapshots != nil && e.cfg.EnableCmdWAL {
		snapSeq = e.loadSnapshot(market, proc, outboxWriter, lastCompleteSeq)
	}

	var lastSeq uint64
	if e.cfg.EnableCmdWAL {
		lastSeq, err = replayCmdWAL(e.ctx, market, cmdPath, proc, outboxWriter, snapSeq, lastCompleteSeq, e.cfg.CmdCodec)
		if err != nil {
			_ = closeIfNotNil(outboxWriter)
			return nil, err
		}
	}
	if lastSeq < snapSeq {
		lastSeq = snapSeq
	}
	proc.SetLedger(e.cfg.Ledger)
	// 补齐的事件落盘
	if outboxWriter != nil {
		if err := outboxWriter.Flush(); err != nil {
			_ = closeIfNotNil(outboxWriter)
			return nil, err
		}
	}

	// 恢复完再打开写端，后面每条新命令按 batch Append+Flush
	var cmdWriter walWriter
	if e.cfg.EnableCmdWAL {
		cmdWriter, err = wal.OpenWrite(cmdPath, e.cfg.WALBufSize)
		if err != nil {
			_ = closeIfNotNil(outboxWriter)
			return nil, err
		}
	}

	a = NewMarketActor(market, proc, e.cfg.ActorCfg, cmdWriter, outboxWriter, pubNotify, e.cfg.CmdCodec)
	// 保证重启后 seq 连续（新命令从 lastSeq+1 开始）
	a.seq = lastSeq
	a.snapSeq = snapSeq
	a.snaps = e.cfg.Snapshots
	if outboxWriter == nil {
		a.sink = e.bus
	}
	e.actors[market] = a

	e.wg.Add(1)
	safe.Go(func() {
		defer e.wg.Done()
		a.Run(e.ctx)
	})

	// publisher tail ev.wal，读到事件就发布到 bus；读到 EvCmdEnd 就推进 cursor
	if e.cfg.EnablePublisher && outboxWriter != nil {
		pub := NewOutboxPublisher(e.ctx, e.bus, evPath, curPath, pubNotify, e.cfg.PublisherPoll, e.cfg.EvCodec)
		e.wg.Add(1)
		safe.Go(func() {
			defer e.wg.Done()
			pub.Run()
		})
	}
	return a, nil
}

// loadSnapshot 成功返回快照对应的 seq；失败就从头回放
func (e *Engine) loadSnapshot(market string, proc *dex.Processor, ob Outbox, lastCompleteSeq uint64) uint64 {
	seq, state, ok, err := e.cfg.Snapshots.Load(market)
	if err != nil {
		logger.Warn(e.ctx, "load snapshot failed", zap.String("market", market), zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	// outbox 比快照旧：事件得从头补，不能用快照
	if ob != nil && seq > lastCompleteSeq {
		logger.Warn(e.ctx, "snapshot ahead of outbox, full replay",
			zap.String("market", market), zap.Uint64("snapSeq", seq), zap.Uint64("outboxSeq", lastCompleteSeq))
		return 0
	}
	if err := proc.Restore(state); err != nil {
		logger.Warn(e.ctx, "restore snapshot failed", zap.String("market", market), zap.Error(err))
		// Restore 失败不会改动 processor
		return 0
	}
	return seq
}

// replayCmdWAL 两遍：先收集被拒的 seq，再按原样重放其余命令
// seq <= skipTo 的命令已经在快照里；seq > lastCompleteSeq 的事件补写进 outbox
func replayCmdWAL(ctx context.Context, market, cmdPath string, proc *dex.Processor, outbox Outbox,
	skipTo, lastCompleteSeq uint64, codec CmdCodec) (lastSeq uint64, err error) {
	rejected := make(map[uint64]uint32)
	st, err := wal.Replay(cmdPath, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		seq, cmd, err := codec.Decode(payload)
		if err != nil {
			return err
		}
		if cmd.Type == CmdReject {
			rejected[cmd.RejectSeq] = cmd.RejectCode
		}
		if seq > lastSeq {
			lastSeq = seq
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	// 半截记录截掉，不然后面 append 的记录读不到
	if st.TruncatedTail {
		if err := wal.TruncateTo(cmdPath, st.LastGoodOffset); err != nil {
			return 0, err
		}
	}

	_, err = wal.Replay(cmdPath, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		seq, cmd, err := codec.Decode(payload)
		if err != nil {
			return err
		}
		if cmd.Type == CmdReject || seq <= skipTo {
			return nil
		}
		fill := outbox != nil && seq > lastCompleteSeq
		em := &outboxEmitter{seq: seq, req: cmd.ReqID}
		if fill {
			em.out = outbox
		}

		if code, ok := rejected[seq]; ok {
			if fill {
				em.reject(rejectEvent(market, cmd), code)
			}
		} else if _, err := apply(ctx, proc, dex.Op{Seq: seq, Emit: em}, cmd); err != nil {
			// 原来成功的命令回放失败：只可能是账本不一致，记下来继续
			logger.Error(ctx, "replay command failed",
				zap.String("path", cmdPath), zap.Uint64("seq", seq), zap.Stringer("cmd", cmd.Type), zap.Error(err))
			if fill {
				em.reject(rejectEvent(market, cmd), rejectCode(err))
			}
		}
		if em.err != nil {
			return em.err
		}
		if !fill {
			return nil
		}
		return outbox.AppendCmdEnd(seq)
	})
	if err != nil {
		return 0, err
	}
	return lastSeq, nil
}

func parseKey(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, errors.New("empty key")
	}
	return solana.PublicKeyFromBase58(s)
}

func closeIfNotNil(ob Outbox) error {
	if ob == nil {
		return nil
	}
	return ob.Close()
}
