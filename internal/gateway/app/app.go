package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopherdex.com/internal/broadcast"
	"gopherdex.com/internal/crank"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/engine"
	fundsapp "gopherdex.com/internal/funds/app"
	dexConfig "gopherdex.com/internal/gateway/config"
	"gopherdex.com/internal/gateway/handler"
	ghttp "gopherdex.com/internal/gateway/http"
	vipConfig "gopherdex.com/pkg/config"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
	"gopherdex.com/pkg/trace"
	"gopherdex.com/pkg/xredis"
)

type App struct {
	service string
	cfg     dexConfig.DexConfig

	funds         *fundsapp.Funds
	eng           *engine.Engine
	snaps         *engine.PebbleSnapshots
	broker        broadcast.Broker
	traceShutdown func(context.Context) error
}

// New 加载配置并初始化日志；file 为空时按 config/{service}.yaml 查找
func New(service, file string) (*App, error) {
	cfg := dexConfig.DexConfig{}
	v, err := vipConfig.Load(service, file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = service
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)

	// 只有日志级别支持热更新，其它改动要重启
	reloaded := &dexConfig.DexConfig{}
	vipConfig.Watch(v, service, reloaded, func() {
		if err := logger.SetLevel(reloaded.Log.Level); err != nil {
			logger.Warn(context.Background(), "ignore bad log level", zap.String("level", reloaded.Log.Level))
			return
		}
		logger.Info(context.Background(), "log level reloaded", zap.String("level", reloaded.Log.Level))
	})
	return &App{service: service, cfg: cfg}, nil
}

func (app *App) Config() dexConfig.DexConfig { return app.cfg }

// Start 装配 trace、资金、引擎、广播，并从 WAL 恢复所有市场
func (app *App) Start(ctx context.Context) error {
	metrics.MustRegister()

	if app.cfg.Trace.Enabled {
		shutdown, err := trace.InitTrace(app.cfg.Name, app.cfg.Trace.Host, app.cfg.Trace.SampleRatio)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		app.traceShutdown = shutdown
	}

	f, err := fundsapp.Build(ctx, &app.cfg.Funds)
	if err != nil {
		return fmt.Errorf("build funds: %w", err)
	}
	app.funds = f

	ecfg, err := app.engineConfig()
	if err != nil {
		return err
	}
	app.eng = engine.NewEngine(ecfg)
	if err := app.eng.Recover(ctx); err != nil {
		return fmt.Errorf("recover engine: %w", err)
	}
	logger.Info(ctx, "engine recovered", zap.Int("markets", len(app.eng.Markets())))

	if app.broker, err = newBroker(app.cfg.Broadcast); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	return nil
}

func (app *App) engineConfig() (engine.EngineConfig, error) {
	ec := app.cfg.Engine
	cfg := engine.EngineConfig{
		Ledger:          app.funds.Ledger,
		EventBusSize:    ec.EventBusSize,
		WALDir:          ec.WALDir,
		EnableCmdWAL:    ec.EnableCmdWAL,
		EnableOutbox:    ec.EnableOutbox,
		EnablePublisher: ec.EnablePublisher,
		PublisherPoll:   ec.PublisherPoll,
		ActorCfg: engine.ActorConfig{
			MailboxSize:   ec.MailboxSize,
			BatchMax:      ec.BatchMax,
			SnapshotEvery: ec.SnapshotEvery,
		},
	}
	if app.cfg.ProgramID != "" {
		pid, err := solana.PublicKeyFromBase58(app.cfg.ProgramID)
		if err != nil {
			return cfg, fmt.Errorf("program_id: %w", err)
		}
		cfg.ProgramID = pid
	}
	cfg.CmdCodec, cfg.EvCodec = Codecs(ec.Codec)

	// 内存账本重启就清空，回放时不能再记一遍账
	if !app.funds.Durable && ec.EnableCmdWAL {
		logger.Warn(context.Background(), "funds ledger is not durable, replay skips token transfers")
		cfg.ReplayLedger = dex.NopLedger{}
	}

	if ec.SnapshotDir != "" {
		snaps, err := engine.OpenPebbleSnapshots(ec.SnapshotDir)
		if err != nil {
			return cfg, fmt.Errorf("open snapshots: %w", err)
		}
		app.snaps = snaps
		cfg.Snapshots = snaps
	}
	return cfg, nil
}

// Codecs 配置名到编解码器
func Codecs(name string) (engine.CmdCodec, engine.EvCodec) {
	if name == "json" {
		return engine.JSONCmdCodec{Version: 1}, engine.JSONEvCodec{Version: 1}
	}
	return engine.BinaryCMDCode{}, engine.EvCmdCodec{}
}

func newBroker(cfg dexConfig.BroadcastConfig) (broadcast.Broker, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "mem":
		return broadcast.NewMemBroker(), nil
	case "nats":
		return broadcast.NewNatsBroker(cfg.NatsURL)
	case "kafka":
		return broadcast.NewKafkaBroker(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown broadcast driver %q", cfg.Driver)
	}
}

// NewBroker 给只订阅事件的命令行用
func NewBroker(cfg dexConfig.BroadcastConfig) (broadcast.Broker, error) {
	b, err := newBroker(cfg)
	if err == nil && b == nil {
		err = errors.New("broadcast driver is not configured")
	}
	return b, err
}

// Run 阻塞到 ctx 结束：HTTP、crank、事件广播各跑一个协程，任一出错整体退出
func (app *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := ghttp.NewRouter(gctx, ghttp.Options{
		Addr:      app.cfg.HTTP.Addr,
		Service:   app.service,
		RateLimit: app.cfg.HTTP.RateLimit,
		Burst:     app.cfg.HTTP.Burst,
		Market:    &handler.Market{Eng: app.eng},
		Balance:   &handler.Balance{Svc: app.funds.Service, Faucet: app.cfg.Funds.Faucet},
	})
	g.Go(func() error {
		logger.Info(gctx, "http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if app.cfg.Crank.Enabled {
		c := crank.New(app.eng, app.cfg.Crank.Crank(), app.leader())
		g.Go(func() error { return ignoreCanceled(c.Run(gctx)) })
	}

	if app.broker != nil {
		relay := broadcast.NewRelay(app.cfg.Broadcast.Driver, app.broker)
		g.Go(func() error { return ignoreCanceled(relay.Run(gctx, app.eng.Events())) })
	}

	return g.Wait()
}

// leader 没配 redis 或 key 时单实例运行
func (app *App) leader() crank.Leader {
	if app.cfg.Crank.LeaderKey == "" || app.funds.Redis == nil {
		return nil
	}
	ttl := app.cfg.Crank.LeaderTTL
	if ttl <= 0 {
		ttl = 3 * app.cfg.Crank.Crank().Interval
		if ttl <= 0 {
			ttl = 3 * crank.DefaultInterval
		}
	}
	l := xredis.NewLeaderLock(app.funds.Redis, app.cfg.Crank.LeaderKey, ttl)
	logger.Info(context.Background(), "crank leader election", zap.String("key", app.cfg.Crank.LeaderKey), zap.String("id", l.ID()))
	return l
}

// Close 按依赖反序关闭
func (app *App) Close(ctx context.Context) {
	if app.eng != nil {
		app.eng.Stop()
	}
	if app.snaps != nil {
		_ = app.snaps.Close()
	}
	if app.broker != nil {
		_ = app.broker.Close()
	}
	if app.funds != nil {
		_ = app.funds.Close()
	}
	if app.traceShutdown != nil {
		_ = app.traceShutdown(ctx)
	}
	logger.Sync()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
