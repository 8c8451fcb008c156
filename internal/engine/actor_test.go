package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

func TestActor_WalAppendFail_NoApply(t *testing.T) {
	p := initProcessor(t)
	a := NewMarketActor("m", p, ActorConfig{}, &failingWal{failAfterAppend: 1}, nil, nil, nil)
	startActor(t, a)

	_, err := a.Submit(context.Background(), newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000))
	if !errors.Is(err, ErrActorDead) {
		t.Fatalf("want ErrActorDead, got %v", err)
	}
	waitDone(t, a)

	v, err := p.View()
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(v.Bids) != 0 {
		t.Fatalf("command applied after wal failure: %d bids", len(v.Bids))
	}
	if err := a.TryEnqueue(newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000)); !errors.Is(err, ErrActorDead) {
		t.Fatalf("enqueue on dead actor: %v", err)
	}
}

func TestActor_WalFlushFail_NoApply(t *testing.T) {
	p := initProcessor(t)
	w := &failingWal{failFlush: true}
	a := NewMarketActor("m", p, ActorConfig{}, w, nil, nil, nil)
	startActor(t, a)

	if _, err := a.Submit(context.Background(), newOrder(bob, matching.Ask, 2_000_000, 1_000_000_000)); !errors.Is(err, ErrActorDead) {
		t.Fatalf("want ErrActorDead, got %v", err)
	}
	waitDone(t, a)
	if atomic.LoadInt32(&w.appendN) != 1 {
		t.Fatalf("append calls: %d", w.appendN)
	}
	v, _ := p.View()
	if len(v.Asks) != 0 {
		t.Fatalf("command applied after flush failure")
	}
}

func TestActor_OutboxFailures_StopActor(t *testing.T) {
	cases := map[string]*failingOutbox{
		"append": {failAppend: true},
		"cmdEnd": {failCmdEnd: true},
		"flush":  {failFlush: true},
	}
	for name, ob := range cases {
		t.Run(name, func(t *testing.T) {
			a := NewMarketActor("m", initProcessor(t), ActorConfig{}, &failingWal{}, ob, nil, nil)
			startActor(t, a)
			_, err := a.Submit(context.Background(), newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000))
			if !errors.Is(err, ErrActorDead) {
				t.Fatalf("want ErrActorDead, got %v", err)
			}
			waitDone(t, a)
		})
	}
}

func TestActor_RejectWritesMarkerAndEvent(t *testing.T) {
	w := &failingWal{}
	ob := &failingOutbox{}
	a := NewMarketActor("m", initProcessor(t), ActorConfig{}, w, ob, nil, nil)
	startActor(t, a)

	res, err := a.Submit(context.Background(), Command{Type: CmdCancel, Signer: alice, OrderID: 99})
	if !errors.Is(err, xerr.ErrOrderNotFound) {
		t.Fatalf("want OrderNotFound, got %v", err)
	}
	if res.Seq != 1 {
		t.Fatalf("seq=%d", res.Seq)
	}
	// 命令本身 + 拒绝标记
	if got := atomic.LoadInt32(&w.appendN); got != 2 {
		t.Fatalf("wal appends=%d want 2", got)
	}
	if got := atomic.LoadInt32(&w.flushN); got != 2 {
		t.Fatalf("wal flushes=%d want 2", got)
	}
	if len(ob.events) != 2 {
		t.Fatalf("outbox events=%d", len(ob.events))
	}
	rej := ob.events[0]
	if rej.Type != EvRejected || rej.Code != 6001 || rej.Seq != 1 || rej.OrderID != 99 {
		t.Fatalf("bad reject event: %+v", rej)
	}
	if ob.events[1].Type != EvCmdEnd {
		t.Fatalf("missing cmd end: %+v", ob.events[1])
	}
}

func TestActor_ResultCarriesEvents(t *testing.T) {
	ob := &failingOutbox{}
	a := NewMarketActor("m", initProcessor(t), ActorConfig{}, &failingWal{}, ob, nil, nil)
	startActor(t, a)
	ctx := context.Background()

	bid, err := a.Submit(ctx, newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000))
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if bid.OrderID != 1 || bid.Seq != 1 {
		t.Fatalf("bid result: %+v", bid)
	}
	if len(bid.Events) != 1 || bid.Events[0].Type != dex.EvOrderPlaced || bid.Events[0].Owner != alice {
		t.Fatalf("bid events: %+v", bid.Events)
	}
	if _, err := a.Submit(ctx, newOrder(bob, matching.Ask, 2_000_000, 1_000_000_000)); err != nil {
		t.Fatalf("ask: %v", err)
	}

	res, err := a.Submit(ctx, Command{Type: CmdMatch, Limit: 10})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.Matched != 1 || res.Seq != 3 {
		t.Fatalf("match result: %+v", res)
	}
	if countType(res.Events, dex.EvTrade) != 1 || countType(res.Events, dex.EvFeeCollected) != 1 {
		t.Fatalf("match events: %+v", res.Events)
	}
	for i, ev := range res.Events {
		if ev.Seq != 3 || int(ev.Idx) != i {
			t.Fatalf("event %d: seq=%d idx=%d", i, ev.Seq, ev.Idx)
		}
	}

	v := a.View()
	if v == nil || len(v.Bids) != 0 || len(v.Asks) != 0 {
		t.Fatalf("book not empty after full fill: %+v", v)
	}
	if v.Market.FeesAccrued == 0 {
		t.Fatalf("fees not accrued")
	}
}

func TestActor_MailboxFull(t *testing.T) {
	a := NewMarketActor("m", initProcessor(t), ActorConfig{MailboxSize: 1}, nil, nil, nil, nil)

	if err := a.TryEnqueue(newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000)); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := a.TryEnqueue(newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000)); !errors.Is(err, ErrEngineBusy) {
		t.Fatalf("want ErrEngineBusy, got %v", err)
	}
	if a.MailboxFull() != 1 {
		t.Fatalf("mailboxFull=%d", a.MailboxFull())
	}
}

func TestActor_StopReleasesWaiters(t *testing.T) {
	a := NewMarketActor("m", initProcessor(t), ActorConfig{MailboxSize: 4}, nil, nil, nil, nil)
	ch := make(chan reply, 1)
	if err := a.enqueue(envelope{cmd: Command{Type: CmdMatch}, reply: ch}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)

	// Run 可能先处理了这条命令，也可能直接 drain；总之调用方不能卡住
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("waiter not released")
	}
}

func TestActor_DirectSinkWithoutOutbox(t *testing.T) {
	bus := NewChanBus(16)
	a := NewMarketActor("m", initProcessor(t), ActorConfig{}, nil, nil, nil, nil)
	a.sink = bus
	startActor(t, a)

	if _, err := a.Submit(context.Background(), newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case ev := <-bus.C():
		if ev.Type != dex.EvOrderPlaced || ev.OrderID != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("event not published before reply")
	}
}

type memSnapshots struct {
	mu    sync.Mutex
	seq   map[string]uint64
	state map[string][]byte
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{seq: map[string]uint64{}, state: map[string][]byte{}}
}

func (m *memSnapshots) Save(market string, seq uint64, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[market], m.state[market] = seq, state
	return nil
}

func (m *memSnapshots) Load(market string) (uint64, []byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[market]
	return m.seq[market], st, ok, nil
}

func (m *memSnapshots) Close() error { return nil }

func TestActor_SnapshotEvery(t *testing.T) {
	snaps := newMemSnapshots()
	a := NewMarketActor("m", initProcessor(t), ActorConfig{SnapshotEvery: 2}, nil, nil, nil, nil)
	a.snaps = snaps
	startActor(t, a)
	ctx := context.Background()

	if _, err := a.Submit(ctx, newOrder(alice, matching.Bid, 2_000_000, 1_000_000_000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, ok, _ := snaps.Load("m"); ok {
		t.Fatalf("snapshot taken too early")
	}
	if _, err := a.Submit(ctx, newOrder(alice, matching.Bid, 1_900_000, 1_000_000_000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	seq, state, ok, _ := snaps.Load("m")
	if !ok || seq != 2 {
		t.Fatalf("snapshot seq=%d ok=%v", seq, ok)
	}

	p := dex.NewProcessor(dex.DefaultProgramID, nil)
	if err := p.Restore(state); err != nil {
		t.Fatalf("restore: %v", err)
	}
	v, _ := p.View()
	if len(v.Bids) != 2 {
		t.Fatalf("restored bids=%d", len(v.Bids))
	}
}
