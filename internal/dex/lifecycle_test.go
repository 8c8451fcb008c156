package dex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

func TestInitializeMarketValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *MarketParams)
		want   error
	}{
		{"maker fee", func(p *MarketParams) { p.MakerFeeBps = 10_001 }, xerr.ErrInvalidFee},
		{"fee before params", func(p *MarketParams) { p.TakerFeeBps = 10_001; p.TickSize = 0 }, xerr.ErrInvalidFee},
		{"tick", func(p *MarketParams) { p.TickSize = 0 }, xerr.ErrInvalidMarketParams},
		{"lot", func(p *MarketParams) { p.BaseLotSize = 0 }, xerr.ErrInvalidMarketParams},
		{"same mint", func(p *MarketParams) { p.QuoteMint = p.BaseMint }, xerr.ErrInvalidMint},
		{"zero mint", func(p *MarketParams) { p.BaseMint = solana.PublicKey{} }, xerr.ErrInvalidMint},
		{"vault", func(p *MarketParams) { p.BaseVault = ownerA }, xerr.ErrInvalidVault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := defaultParams()
			tc.mutate(&p)
			proc := NewProcessor(solana.PublicKey{}, nil)
			_, err := proc.InitializeMarket(context.Background(), Op{}, InitMarketRequest{Payer: admin, Params: p})
			require.ErrorIs(t, err, tc.want)
			assert.False(t, proc.Initialized())
		})
	}
}

func TestInitializeMarketDefaults(t *testing.T) {
	f := newFixture(t, defaultParams())
	m, ok := f.p.Market()
	require.True(t, ok)

	addrs, err := DeriveAddresses(DefaultProgramID, base, quote)
	require.NoError(t, err)
	assert.Equal(t, addrs.Market, m.Address)
	assert.Equal(t, addrs.QuoteVault, m.QuoteVault)
	assert.Equal(t, admin, m.Authority)
	assert.Zero(t, m.OrderSequenceNumber)
	assert.Equal(t, uint64(DefaultPriceScale), m.PriceScale)
	assert.Equal(t, uint64(DefaultMinBaseQty), m.MinBaseQty)

	// 自带的 vault 与派生一致时允许
	p := defaultParams()
	p.BaseVault = addrs.BaseVault
	_, err = NewProcessor(solana.PublicKey{}, nil).InitializeMarket(context.Background(), Op{}, InitMarketRequest{Payer: admin, Params: p})
	require.NoError(t, err)

	_, err = f.p.InitializeMarket(context.Background(), f.op(), InitMarketRequest{Payer: admin, Params: defaultParams()})
	require.ErrorIs(t, err, xerr.ErrMarketAlreadyInitialized)

	inits := f.rec.OfType(EvMarketInitialized)
	require.Len(t, inits, 1)
	assert.Equal(t, uint64(100), inits[0].TickSize)
	assert.Equal(t, uint16(40), inits[0].TakerFeeBps)
}

func TestOperationsBeforeInit(t *testing.T) {
	p := NewProcessor(solana.PublicKey{}, nil)
	_, err := p.NewLimitOrder(context.Background(), Op{}, NewOrderRequest{Owner: ownerA, Side: matching.Bid, Price: 1, Quantity: 1})
	require.ErrorIs(t, err, xerr.ErrMarketNotInitialized)
	_, err = p.View()
	require.ErrorIs(t, err, xerr.ErrMarketNotInitialized)
}

func TestNewLimitOrderValidation(t *testing.T) {
	params := defaultParams()
	params.MinBaseQty = 2_000_000
	params.MinNotional = 1_000
	f := newFixture(t, params)

	cases := []struct {
		name       string
		price, qty uint64
		want       error
	}{
		{"zero price", 0, 2_000_000, xerr.ErrInvalidOrderInput},
		{"zero qty", 100, 0, xerr.ErrInvalidOrderInput},
		{"tick", 150, 2_000_000, xerr.ErrInvalidTickSize},
		{"lot", 100, 2_500_000, xerr.ErrInvalidLotSize},
		{"min qty", 100, 1_000_000, xerr.ErrBelowMinBaseQty},
		{"min notional", 100, 2_000_000, xerr.ErrBelowMinNotional},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.place(matching.Bid, ownerA, tc.price, tc.qty)
			require.ErrorIs(t, err, tc.want)
		})
	}
	v, _ := f.p.View()
	assert.Empty(t, v.OpenOrders)
	assert.Empty(t, f.l.batches)
}

func TestOrderIDsIncrease(t *testing.T) {
	f := newFixture(t, defaultParams())
	for i := uint64(1); i <= 5; i++ {
		id := f.mustPlace(t, matching.Bid, ownerA, 10000+i*100, 1_000_000)
		assert.Equal(t, i, id)
	}
	v, _ := f.p.View()
	// 买单价格降序
	assert.Equal(t, uint64(5), v.Bids[0].ID)
	assert.Equal(t, uint64(1), v.Bids[4].ID)
}

func TestPostOnly(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)

	_, err := f.p.NewLimitOrder(ctx, f.op(), NewOrderRequest{Owner: ownerA, Side: matching.Bid, Price: 15000, Quantity: 1_000_000, PostOnly: true})
	require.ErrorIs(t, err, xerr.ErrOrderWouldCross)

	_, err = f.p.NewLimitOrder(ctx, f.op(), NewOrderRequest{Owner: ownerA, Side: matching.Bid, Price: 14900, Quantity: 1_000_000, PostOnly: true})
	require.NoError(t, err)

	_, err = f.p.NewLimitOrder(ctx, f.op(), NewOrderRequest{Owner: ownerC, Side: matching.Ask, Price: 14900, Quantity: 1_000_000, PostOnly: true})
	require.ErrorIs(t, err, xerr.ErrOrderWouldCross)

	// 不带 post-only 可以挂出交叉的单
	f.mustPlace(t, matching.Ask, ownerC, 14900, 1_000_000)
}

func TestOpenOrdersFull(t *testing.T) {
	f := newFixture(t, defaultParams())
	for i := 0; i < MaxOpenOrders; i++ {
		f.mustPlace(t, matching.Bid, ownerA, 10000, 1_000_000)
	}
	_, err := f.place(matching.Bid, ownerA, 10000, 1_000_000)
	require.ErrorIs(t, err, xerr.ErrOpenOrdersFull)
	f.checkInvariants(t)
}

func TestOrderBookFull(t *testing.T) {
	f := newFixture(t, defaultParams())
	for i := 0; i < matching.Capacity; i++ {
		owner := solana.PublicKey{0xE0, byte(i / MaxOpenOrders)}
		f.mustPlace(t, matching.Ask, owner, 20000, 1_000_000)
	}
	_, err := f.place(matching.Ask, ownerA, 20000, 1_000_000)
	require.ErrorIs(t, err, xerr.ErrOrderBookFull)

	// 另一边不受影响
	f.mustPlace(t, matching.Bid, ownerA, 10000, 1_000_000)
	f.checkInvariants(t)
}

func TestMathOverflow(t *testing.T) {
	p := defaultParams()
	p.TickSize = 1
	p.BaseLotSize = 1
	p.PriceScale = 1
	f := newFixture(t, p)
	_, err := f.place(matching.Bid, ownerA, math.MaxUint64, math.MaxUint64)
	require.ErrorIs(t, err, xerr.ErrMathOverflow)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, defaultParams())
	id := f.mustPlace(t, matching.Bid, ownerA, 15100, 5_000_000_000)
	a := f.account(t, ownerA)
	assert.Equal(t, uint64(75_802_000), a.QuoteLocked)

	require.NoError(t, f.cancel(ownerA, id))
	a = f.account(t, ownerA)
	assert.Zero(t, a.QuoteLocked)
	assert.Equal(t, uint64(75_802_000), a.QuoteFree)
	assert.Empty(t, a.Orders())

	require.ErrorIs(t, f.cancel(ownerA, id), xerr.ErrOrderNotFound)
	require.ErrorIs(t, f.cancel(ownerA, 999), xerr.ErrOrderNotFound)

	cancelled := f.rec.OfType(EvOrderCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, ownerA, cancelled[0].Owner)
	assert.Equal(t, id, cancelled[0].OrderID)

	// 重新下单先用 free 余额，不再从外部转入
	batches := len(f.l.batches)
	f.mustPlace(t, matching.Bid, ownerA, 15100, 5_000_000_000)
	assert.Len(t, f.l.batches, batches)
	f.checkInvariants(t)
}

func TestCancelWhilePaused(t *testing.T) {
	f := newFixture(t, defaultParams())
	id := f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	require.NoError(t, f.p.SetPause(context.Background(), f.op(), admin, true))
	require.NoError(t, f.cancel(ownerB, id))

	_, err := f.match(5)
	require.ErrorIs(t, err, xerr.ErrPaused)
}

func TestSelfTradeRollsBack(t *testing.T) {
	f := newFixture(t, defaultParams())
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	f.mustPlace(t, matching.Ask, ownerA, 15100, 1_000_000_000)
	f.mustPlace(t, matching.Bid, ownerA, 15100, 2_000_000_000)

	before, _ := f.p.View()
	batches := len(f.l.batches)
	events := len(f.rec.Events)

	// 第一笔和 B 正常成交，第二笔撞上自己的卖单，整次调用回滚
	_, err := f.match(5)
	require.ErrorIs(t, err, xerr.ErrSelfTradeForbidden)

	after, _ := f.p.View()
	assert.Equal(t, before, after)
	assert.Len(t, f.l.batches, batches)
	assert.Len(t, f.rec.Events, events)
	f.checkInvariants(t)
}

func TestMatchAccounts(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	f.mustPlace(t, matching.Bid, ownerA, 15000, 1_000_000_000)

	_, err := f.p.MatchOrders(ctx, f.op(), MatchRequest{Limit: 5, Accounts: []solana.PublicKey{f.ooAddr(t, ownerA)}})
	require.ErrorIs(t, err, xerr.ErrInvalidMakerAccount)

	n, err := f.p.MatchOrders(ctx, f.op(), MatchRequest{Limit: 5, Accounts: []solana.PublicKey{f.ooAddr(t, ownerB), f.ooAddr(t, ownerA)}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMatchLimitAndNoCross(t *testing.T) {
	f := newFixture(t, defaultParams())
	for i := 0; i < 3; i++ {
		f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	}
	f.mustPlace(t, matching.Bid, ownerA, 15000, 3_000_000_000)

	n, err := f.match(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.match(5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 空簿和不交叉都不是错误
	n, err = f.match(5)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.mustPlace(t, matching.Ask, ownerB, 16000, 1_000_000_000)
	f.mustPlace(t, matching.Bid, ownerA, 15000, 1_000_000_000)
	n, err = f.match(5)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.checkInvariants(t)
}

func TestMakerIsEarlierOrder(t *testing.T) {
	f := newFixture(t, defaultParams())
	bidID := f.mustPlace(t, matching.Bid, ownerA, 15100, 1_000_000_000)
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)

	_, err := f.match(1)
	require.NoError(t, err)
	trades := f.rec.OfType(EvTrade)
	require.Len(t, trades, 1)
	// 买单先挂，按买价成交，卖方是 taker
	assert.Equal(t, uint64(15100), trades[0].Price)
	assert.Equal(t, bidID, trades[0].BidOrderID)
	assert.Equal(t, ownerB, trades[0].Taker)
	assert.True(t, trades[0].Owner.IsZero())

	// quote 15_100_000；买方 maker 20bps=30_200，卖方 taker 40bps=60_400
	a := f.account(t, ownerA)
	assert.Zero(t, a.QuoteLocked)
	assert.Equal(t, uint64(60_400-30_200), a.QuoteFree)
	b := f.account(t, ownerB)
	assert.Equal(t, uint64(15_100_000-60_400), b.QuoteFree)
	f.checkInvariants(t)
}

func TestZeroFees(t *testing.T) {
	p := defaultParams()
	p.MakerFeeBps, p.TakerFeeBps = 0, 0
	f := newFixture(t, p)
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	f.mustPlace(t, matching.Bid, ownerA, 15000, 1_000_000_000)
	_, err := f.match(5)
	require.NoError(t, err)
	assert.Empty(t, f.rec.OfType(EvFeeCollected))
	m, _ := f.p.Market()
	assert.Zero(t, m.FeesAccrued)
	f.checkInvariants(t)
}

func TestSetFees(t *testing.T) {
	f := newFixture(t, defaultParams())
	ctx := context.Background()

	require.ErrorIs(t, f.p.SetFees(ctx, f.op(), ownerA, 1, 1), xerr.ErrUnauthorized)
	require.ErrorIs(t, f.p.SetFees(ctx, f.op(), admin, 1, 10_001), xerr.ErrInvalidFee)
	require.ErrorIs(t, f.p.SetPause(ctx, f.op(), ownerA, true), xerr.ErrUnauthorized)

	// 已挂的买单按下单时的费率预留
	f.mustPlace(t, matching.Bid, ownerA, 15000, 1_000_000_000)
	require.NoError(t, f.p.SetFees(ctx, f.op(), admin, 100, 200))
	m, _ := f.p.Market()
	assert.Equal(t, uint16(100), m.MakerFeeBps)
	assert.Equal(t, uint16(200), m.TakerFeeBps)

	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	_, err := f.match(5)
	require.NoError(t, err)

	// 买方 maker 100bps=150_000，但预留只有 40bps=60_000，封顶
	a := f.account(t, ownerA)
	assert.Zero(t, a.QuoteFree)
	m, _ = f.p.Market()
	assert.Equal(t, uint64(60_000+300_000), m.FeesAccrued)

	updates := f.rec.OfType(EvFeesUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, uint16(200), updates[0].TakerFeeBps)
	f.checkInvariants(t)
}

func TestSettleAndClose(t *testing.T) {
	p := defaultParams()
	p.OpenOrdersDeposit = 2_039_280
	f := newFixture(t, p)
	ctx := context.Background()

	f.mustPlace(t, matching.Ask, ownerB, 15000, 10_000_000_000)
	f.mustPlace(t, matching.Bid, ownerA, 15100, 5_000_000_000)
	_, err := f.match(5)
	require.NoError(t, err)

	aAddr := f.ooAddr(t, ownerA)
	assert.Equal(t, int64(p.OpenOrdersDeposit), f.l.balance(aAddr, DepositMint))

	s, err := f.p.SettleFunds(ctx, f.op(), ownerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), s.Base)
	assert.Equal(t, uint64(502_000), s.Quote)

	m, _ := f.p.Market()
	assert.Equal(t, int64(5_000_000_000), f.l.balance(ownerA, m.BaseMint))
	f.checkInvariants(t)

	// 再结算一次没有转账
	batches := len(f.l.batches)
	s, err = f.p.SettleFunds(ctx, f.op(), ownerA)
	require.NoError(t, err)
	assert.Zero(t, s.Base)
	assert.Len(t, f.l.batches, batches)

	// B 还有挂单
	require.ErrorIs(t, f.p.CloseOpenOrders(ctx, f.op(), ownerB, ownerB), xerr.ErrOpenOrdersNotEmpty)

	dest := solana.PublicKey{0xDE}
	require.NoError(t, f.p.CloseOpenOrders(ctx, f.op(), ownerA, dest))
	assert.Equal(t, int64(p.OpenOrdersDeposit), f.l.balance(dest, DepositMint))
	assert.Zero(t, f.l.balance(aAddr, DepositMint))

	_, err = f.p.SettleFunds(ctx, f.op(), ownerA)
	require.ErrorIs(t, err, xerr.ErrOpenOrdersNotFound)
	require.ErrorIs(t, f.p.CloseOpenOrders(ctx, f.op(), ownerA, dest), xerr.ErrOpenOrdersNotFound)

	// 关掉后再下单会重新开户并收押金
	f.mustPlace(t, matching.Bid, ownerA, 10000, 1_000_000)
	assert.Equal(t, int64(p.OpenOrdersDeposit), f.l.balance(aAddr, DepositMint))
	f.checkInvariants(t)
}

func TestLedgerFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, defaultParams())
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	f.mustPlace(t, matching.Bid, ownerA, 15000, 1_000_000_000)
	before, _ := f.p.View()

	f.l.fail = errors.New("ledger down")
	_, err := f.match(5)
	require.Error(t, err)
	_, err = f.place(matching.Bid, ownerC, 15000, 1_000_000)
	require.Error(t, err)

	after, _ := f.p.View()
	assert.Equal(t, before, after)

	f.l.fail = nil
	n, err := f.match(5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.checkInvariants(t)
}

func TestLedgerBatchKey(t *testing.T) {
	f := newFixture(t, defaultParams())
	f.mustPlace(t, matching.Ask, ownerB, 15000, 1_000_000_000)
	require.NotEmpty(t, f.l.batches)
	last := f.l.batches[len(f.l.batches)-1]
	m, _ := f.p.Market()
	assert.Equal(t, fmt.Sprintf("%s:%d", m.Address, f.seq), last.Key)
	assert.Equal(t, m.Address, last.Market)
	require.Len(t, last.Transfers, 1)
	assert.Equal(t, TransferToVault, last.Transfers[0].Kind)
	assert.Equal(t, m.BaseVault, last.Transfers[0].To)

	// 没有 seq 的调用不带 key
	_, err := f.p.NewLimitOrder(context.Background(), Op{}, NewOrderRequest{Owner: ownerC, Side: matching.Ask, Price: 15000, Quantity: 1_000_000})
	require.NoError(t, err)
	assert.Empty(t, f.l.batches[len(f.l.batches)-1].Key)
}

func TestViewDepth(t *testing.T) {
	f := newFixture(t, defaultParams())
	f.mustPlace(t, matching.Bid, ownerA, 15000, 2_500_000_000)
	f.mustPlace(t, matching.Ask, ownerB, 15100, 1_000_000_000)

	v, err := f.p.View()
	require.NoError(t, err)
	bid, ask, err := v.BestBidAsk()
	require.NoError(t, err)
	assert.Equal(t, uint64(15000), bid.Price)
	assert.Equal(t, uint64(15100), ask.Price)

	d := v.Depth()
	require.Len(t, d.Bids, 1)
	assert.Equal(t, "2.5", d.Bids[0].Quantity.String())
	// 15000/1e6 quote 原子/base 原子，换算 9 位 base、6 位 quote 精度后是 15
	assert.Equal(t, "15", d.Bids[0].Price.String())

	oo, ok := v.OpenOrdersOf(f.ooAddr(t, ownerA))
	require.True(t, ok)
	assert.Equal(t, ownerA, oo.Owner)

	empty := newFixture(t, defaultParams())
	ev, _ := empty.p.View()
	_, _, err = ev.BestBidAsk()
	require.ErrorIs(t, err, xerr.ErrOrderBookEmpty)
}
