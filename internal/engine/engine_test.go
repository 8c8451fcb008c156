package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

func persistentConfig(dir string) EngineConfig {
	return EngineConfig{
		WALDir:        dir,
		EnableCmdWAL:  true,
		EnableOutbox:  true,
		PublisherPoll: 10 * time.Millisecond,
	}
}

// seedMarket 建市场 + 一笔成交 + 两张挂单 + 一条被拒的撤单
func seedMarket(t *testing.T, e *Engine) dex.Market {
	t.Helper()
	ctx := context.Background()
	m, err := e.CreateMarket(ctx, testAdmin, testParams())
	require.NoError(t, err)
	key := m.Address.String()

	for _, cmd := range []Command{
		newOrder(alice, matching.Bid, 2_000_000, 2_000_000_000),
		newOrder(bob, matching.Ask, 2_000_000, 1_000_000_000),
		{Type: CmdMatch, Limit: 4},
		newOrder(bob, matching.Ask, 2_100_000, 3_000_000_000),
	} {
		_, err := e.Do(ctx, key, cmd)
		require.NoError(t, err)
	}
	_, err = e.Do(ctx, key, Command{Type: CmdCancel, Signer: bob, OrderID: 42})
	require.ErrorIs(t, err, xerr.ErrOrderNotFound)
	return m
}

func TestEngine_CreateMarketAndTrade(t *testing.T) {
	e := NewEngine(EngineConfig{})
	defer e.Stop()
	ctx := context.Background()

	m, err := e.CreateMarket(ctx, testAdmin, testParams())
	require.NoError(t, err)
	want, err := dex.MarketAddress(dex.DefaultProgramID, baseMint, quoteMint)
	require.NoError(t, err)
	require.Equal(t, want, m.Address)

	_, err = e.CreateMarket(ctx, testAdmin, testParams())
	require.ErrorIs(t, err, xerr.ErrMarketAlreadyInitialized)

	key := m.Address.String()
	_, err = e.Do(ctx, key, newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000))
	require.NoError(t, err)
	_, err = e.Do(ctx, key, newOrder(bob, matching.Ask, 1_900_000, 1_000_000_000))
	require.NoError(t, err)
	res, err := e.Do(ctx, key, Command{Type: CmdMatch, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, res.Matched)

	// 没有 outbox：事件直接进 bus
	evs := collect(t, e.Events(), time.Second, func(evs []Event) bool { return countType(evs, dex.EvTrade) == 1 })
	require.Equal(t, 1, countType(evs, dex.EvMarketInitialized))
	require.Equal(t, 2, countType(evs, dex.EvOrderPlaced))

	trade := evs[len(evs)-1]
	for _, ev := range evs {
		if ev.Type == dex.EvTrade {
			trade = ev
		}
	}
	// 先挂的买单是 maker，成交价取买单价
	require.Equal(t, uint64(2_000_000), trade.Price)
	require.Equal(t, bob, trade.Taker)

	markets := e.Markets()
	require.Len(t, markets, 1)
	require.Equal(t, m.Address, markets[0].Address)
}

func TestEngine_UnknownMarketAndBadCommand(t *testing.T) {
	e := NewEngine(EngineConfig{})
	defer e.Stop()
	ctx := context.Background()

	_, err := e.Do(ctx, solana.PublicKey{0x01}.String(), newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000))
	require.ErrorIs(t, err, ErrUnknownMarket)

	m, err := e.CreateMarket(ctx, testAdmin, testParams())
	require.NoError(t, err)
	_, err = e.Do(ctx, m.Address.String(), Command{Type: CmdInitMarket, Params: &dex.MarketParams{}})
	require.ErrorIs(t, err, ErrBadCommand)
	require.ErrorIs(t, e.TryEnqueue(m.Address.String(), Command{Type: CmdReject}), ErrBadCommand)

	_, err = e.View(solana.PublicKey{0x02}.String())
	require.ErrorIs(t, err, ErrUnknownMarket)
}

func TestEngine_InvalidParamsHiddenFromMarkets(t *testing.T) {
	e := NewEngine(EngineConfig{})
	defer e.Stop()

	p := testParams()
	p.MakerFeeBps = 10_001
	_, err := e.CreateMarket(context.Background(), testAdmin, p)
	require.ErrorIs(t, err, xerr.ErrInvalidFee)
	require.Empty(t, e.Markets())
}

func TestEngine_PersistenceRequiresDir(t *testing.T) {
	e := NewEngine(EngineConfig{EnableCmdWAL: true})
	defer e.Stop()
	_, err := e.CreateMarket(context.Background(), testAdmin, testParams())
	require.Error(t, err)
}

func TestEngine_RestartReplaysWAL(t *testing.T) {
	dir := t.TempDir()

	e1 := NewEngine(persistentConfig(dir))
	m := seedMarket(t, e1)
	key := m.Address.String()
	before, err := e1.View(key)
	require.NoError(t, err)
	a1, _ := e1.actor(key)
	lastSeq := a1.Seq()
	e1.Stop()

	e2 := NewEngine(persistentConfig(dir))
	defer e2.Stop()
	require.NoError(t, e2.Recover(context.Background()))

	after, err := e2.View(key)
	require.NoError(t, err)
	require.Equal(t, before.Market, after.Market)
	require.Equal(t, before.Bids, after.Bids)
	require.Equal(t, before.Asks, after.Asks)
	require.Equal(t, before.OpenOrders, after.OpenOrders)

	// seq 和订单号都接着往下走
	res, err := e2.Do(context.Background(), key, newOrder(alice, matching.Bid, 1_500_000, 1_000_000_000))
	require.NoError(t, err)
	require.Equal(t, lastSeq+1, res.Seq)
	require.Equal(t, before.Market.OrderSequenceNumber+1, res.OrderID)
}

func TestEngine_RefillsLostOutbox(t *testing.T) {
	dir := t.TempDir()

	e1 := NewEngine(persistentConfig(dir))
	m := seedMarket(t, e1)
	key := m.Address.String()
	e1.Stop()

	evPath := outboxWalPath(dir, key)
	var orig bytes.Buffer
	_, err := DumpOutbox(&orig, evPath, nil)
	require.NoError(t, err)

	// 丢掉整个 outbox，重启后应该从 cmd.wal 补出一模一样的事件
	require.NoError(t, os.Remove(evPath))
	e2 := NewEngine(persistentConfig(dir))
	require.NoError(t, e2.Recover(context.Background()))
	e2.Stop()

	var refilled bytes.Buffer
	_, err = DumpOutbox(&refilled, evPath, nil)
	require.NoError(t, err)
	require.Equal(t, orig.String(), refilled.String())
	require.Contains(t, refilled.String(), "type=rejected code=6001")
}

func TestEngine_RepairsTornCmdWAL(t *testing.T) {
	dir := t.TempDir()

	e1 := NewEngine(persistentConfig(dir))
	m := seedMarket(t, e1)
	key := m.Address.String()
	before, _ := e1.View(key)
	e1.Stop()

	// 模拟写到一半掉电
	f, err := os.OpenFile(cmdWalPath(dir, key), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x10, 0x00, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e2 := NewEngine(persistentConfig(dir))
	require.NoError(t, e2.Recover(context.Background()))
	_, err = e2.Do(context.Background(), key, Command{Type: CmdCancel, Signer: bob, OrderID: before.Asks[0].ID})
	require.NoError(t, err)
	e2.Stop()

	// 第三次启动要能读到 e2 追加的命令
	e3 := NewEngine(persistentConfig(dir))
	defer e3.Stop()
	require.NoError(t, e3.Recover(context.Background()))
	v, err := e3.View(key)
	require.NoError(t, err)
	require.Empty(t, v.Asks)
}

func TestEngine_PebbleSnapshotRestart(t *testing.T) {
	dir := t.TempDir()
	snaps, err := OpenPebbleSnapshots(filepath.Join(dir, "snap"))
	require.NoError(t, err)
	defer snaps.Close()

	cfg := persistentConfig(filepath.Join(dir, "wal"))
	cfg.Snapshots = snaps
	cfg.ActorCfg.SnapshotEvery = 1

	e1 := NewEngine(cfg)
	m := seedMarket(t, e1)
	key := m.Address.String()
	before, _ := e1.View(key)
	a1, _ := e1.actor(key)
	lastSeq := a1.Seq()
	e1.Stop()

	seq, state, ok, err := snaps.Load(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, lastSeq, seq)
	require.NotEmpty(t, state)

	e2 := NewEngine(cfg)
	defer e2.Stop()
	require.NoError(t, e2.Recover(context.Background()))
	after, err := e2.View(key)
	require.NoError(t, err)
	require.Equal(t, before.Bids, after.Bids)
	require.Equal(t, before.Asks, after.Asks)
	require.Equal(t, before.Market.FeesAccrued, after.Market.FeesAccrued)
}

func TestEngine_PublisherDeliversOnceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := persistentConfig(dir)
	cfg.EnablePublisher = true

	e1 := NewEngine(cfg)
	m := seedMarket(t, e1)
	key := m.Address.String()

	// 1 init + 3 placed + trade + fee + rejected
	evs := collect(t, e1.Events(), 3*time.Second, func(evs []Event) bool { return len(evs) >= 7 })
	require.Len(t, evs, 7)
	require.Equal(t, 1, countType(evs, dex.EvTrade))
	require.Equal(t, 1, countType(evs, EvRejected))
	for i := 1; i < len(evs); i++ {
		require.LessOrEqual(t, evs[i-1].Seq, evs[i].Seq)
	}

	// 等 cursor 追上文件末尾再停
	evPath := outboxWalPath(dir, key)
	require.Eventually(t, func() bool {
		st, err := os.Stat(evPath)
		return err == nil && loadCursor(outboxCursorPath(dir, key)) == st.Size()
	}, 3*time.Second, 10*time.Millisecond)
	e1.Stop()

	e2 := NewEngine(cfg)
	defer e2.Stop()
	require.NoError(t, e2.Recover(context.Background()))
	again := collect(t, e2.Events(), 200*time.Millisecond, nil)
	require.Empty(t, again, "already published events must not be resent")
}

func TestEngine_JSONCodecs(t *testing.T) {
	dir := t.TempDir()
	cfg := persistentConfig(dir)
	cfg.CmdCodec = JSONCmdCodec{Version: 1}
	cfg.EvCodec = JSONEvCodec{Version: 1}

	e1 := NewEngine(cfg)
	m := seedMarket(t, e1)
	key := m.Address.String()
	before, _ := e1.View(key)
	e1.Stop()

	var out bytes.Buffer
	st, err := DumpCmdWAL(&out, cmdWalPath(dir, key), cfg.CmdCodec)
	require.NoError(t, err)
	// 6 条命令 + 1 条拒绝标记
	require.Equal(t, 7, st.Records)
	require.True(t, strings.HasPrefix(out.String(), "seq=1 type=InitMarket"))
	require.Contains(t, out.String(), "type=Reject of=6 code=6001")

	e2 := NewEngine(cfg)
	defer e2.Stop()
	require.NoError(t, e2.Recover(context.Background()))
	after, err := e2.View(key)
	require.NoError(t, err)
	require.Equal(t, before.Bids, after.Bids)
}
