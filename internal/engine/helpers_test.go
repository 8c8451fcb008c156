package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/matching"
)

var (
	testAdmin = solana.PublicKey{0xAD}
	alice     = solana.PublicKey{0xA1}
	bob       = solana.PublicKey{0xB1}
	baseMint  = solana.PublicKey{0x0B, 0xA5}
	quoteMint = solana.PublicKey{0x0C, 0x05}
)

func testParams() dex.MarketParams {
	return dex.MarketParams{
		BaseMint:      baseMint,
		QuoteMint:     quoteMint,
		BaseDecimals:  9,
		QuoteDecimals: 6,
		MakerFeeBps:   20,
		TakerFeeBps:   40,
		TickSize:      100,
		BaseLotSize:   1_000_000,
	}
}

func newOrder(signer solana.PublicKey, side matching.Side, price, qty uint64) Command {
	return Command{Type: CmdNewOrder, Signer: signer, Side: side, Price: price, Qty: qty}
}

// initProcessor 已经初始化好的市场，给直接测 actor 用
func initProcessor(t *testing.T) *dex.Processor {
	t.Helper()
	p := dex.NewProcessor(solana.PublicKey{}, nil)
	if _, err := p.InitializeMarket(context.Background(), dex.Op{Emit: dex.Discard}, dex.InitMarketRequest{Payer: testAdmin, Params: testParams()}); err != nil {
		t.Fatalf("init market: %v", err)
	}
	return p
}

type failingWal struct {
	appendErr       error
	appendN         int32
	flushN          int32
	failAfterAppend int32 // 第几次 Append 开始失败（1-based）；<=0 表示不失败
	failFlush       bool
}

func (w *failingWal) Append(_ []byte) error {
	n := atomic.AddInt32(&w.appendN, 1)
	if w.failAfterAppend > 0 && n >= w.failAfterAppend {
		if w.appendErr != nil {
			return w.appendErr
		}
		return errors.New("wal append fail")
	}
	return nil
}

func (w *failingWal) Flush() error {
	atomic.AddInt32(&w.flushN, 1)
	if w.failFlush {
		return errors.New("wal flush fail")
	}
	return nil
}

func (w *failingWal) Close() error { return nil }

type failingOutbox struct {
	events     []Event
	failAppend bool
	failCmdEnd bool
	failFlush  bool
}

func (o *failingOutbox) Append(ev Event) error {
	if o.failAppend {
		return errors.New("outbox append fail")
	}
	o.events = append(o.events, ev)
	return nil
}

func (o *failingOutbox) AppendCmdEnd(seq uint64) error {
	if o.failCmdEnd {
		return errors.New("outbox cmdend fail")
	}
	return o.Append(Event{Event: cmdEndEvent(), Seq: seq})
}

func (o *failingOutbox) Flush() error {
	if o.failFlush {
		return errors.New("outbox flush fail")
	}
	return nil
}

func (o *failingOutbox) Close() error { return nil }

// startActor 跑起来，测试结束时停掉并等它退出
func startActor(t *testing.T, a *MarketActor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-a.Done()
	})
}

func waitDone(t *testing.T, a *MarketActor) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("actor did not exit")
	}
}

// collect 从 bus 里读事件直到满足 stop 或超时
func collect(t *testing.T, ch <-chan Event, timeout time.Duration, stop func([]Event) bool) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for {
		if stop != nil && stop(out) {
			return out
		}
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

func countType(evs []Event, typ dex.EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
