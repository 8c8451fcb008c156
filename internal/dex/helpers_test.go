package dex

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"gopherdex.com/internal/matching"
)

var (
	admin  = solana.PublicKey{0xAD}
	ownerA = solana.PublicKey{0xA1}
	ownerB = solana.PublicKey{0xB1}
	ownerC = solana.PublicKey{0xC1}
	ownerD = solana.PublicKey{0xD1}
	base   = solana.PublicKey{0x0B, 0xA5}
	quote  = solana.PublicKey{0x0C, 0x05}
)

// memLedger 记录每个账户每种币的净额；外部钱包允许为负（视为无限余额）
type memLedger struct {
	batches []Batch
	bal     map[solana.PublicKey]map[solana.PublicKey]int64
	fail    error
}

func newMemLedger() *memLedger {
	return &memLedger{bal: map[solana.PublicKey]map[solana.PublicKey]int64{}}
}

func (l *memLedger) Apply(_ context.Context, b Batch) error {
	if l.fail != nil {
		return l.fail
	}
	l.batches = append(l.batches, b)
	for _, tr := range b.Transfers {
		l.move(tr.From, tr.Mint, -int64(tr.Amount))
		l.move(tr.To, tr.Mint, int64(tr.Amount))
	}
	return nil
}

func (l *memLedger) move(acct, mint solana.PublicKey, d int64) {
	m, ok := l.bal[acct]
	if !ok {
		m = map[solana.PublicKey]int64{}
		l.bal[acct] = m
	}
	m[mint] += d
}

func (l *memLedger) balance(acct, mint solana.PublicKey) int64 {
	return l.bal[acct][mint]
}

func defaultParams() MarketParams {
	return MarketParams{
		BaseMint:      base,
		QuoteMint:     quote,
		BaseDecimals:  9,
		QuoteDecimals: 6,
		MakerFeeBps:   20,
		TakerFeeBps:   40,
		TickSize:      100,
		BaseLotSize:   1_000_000,
	}
}

type fixture struct {
	p   *Processor
	l   *memLedger
	rec *Recorder
	seq uint64
}

func newFixture(t *testing.T, params MarketParams) *fixture {
	t.Helper()
	f := &fixture{l: newMemLedger(), rec: &Recorder{}}
	f.p = NewProcessor(solana.PublicKey{}, f.l)
	_, err := f.p.InitializeMarket(context.Background(), f.op(), InitMarketRequest{Payer: admin, Params: params})
	require.NoError(t, err)
	return f
}

func (f *fixture) op() Op {
	f.seq++
	return Op{Seq: f.seq, Emit: f.rec}
}

func (f *fixture) place(side matching.Side, owner solana.PublicKey, price, qty uint64) (uint64, error) {
	return f.p.NewLimitOrder(context.Background(), f.op(), NewOrderRequest{Owner: owner, Side: side, Price: price, Quantity: qty})
}

func (f *fixture) mustPlace(t *testing.T, side matching.Side, owner solana.PublicKey, price, qty uint64) uint64 {
	t.Helper()
	id, err := f.place(side, owner, price, qty)
	require.NoError(t, err)
	return id
}

func (f *fixture) match(limit int) (int, error) {
	return f.p.MatchOrders(context.Background(), f.op(), MatchRequest{Limit: limit})
}

func (f *fixture) cancel(owner solana.PublicKey, id uint64) error {
	return f.p.CancelLimitOrder(context.Background(), f.op(), CancelRequest{Owner: owner, OrderID: id})
}

func (f *fixture) account(t *testing.T, owner solana.PublicKey) OpenOrders {
	t.Helper()
	v, err := f.p.View()
	require.NoError(t, err)
	oo, ok := v.OpenOrdersOfOwner(owner)
	require.True(t, ok, "no open orders for %s", owner)
	return oo
}

func (f *fixture) ooAddr(t *testing.T, owner solana.PublicKey) solana.PublicKey {
	t.Helper()
	addr, err := f.p.OpenOrdersAddress(owner)
	require.NoError(t, err)
	return addr
}

// checkInvariants 订单簿结构、locked 与挂单预留一致、vault 余额与账户记账一致
func (f *fixture) checkInvariants(t require.TestingT) {
	st := f.p.st
	require.NoError(t, st.Bids.Validate())
	require.NoError(t, st.Asks.Validate())
	require.NoError(t, st.checkAccounts())

	baseLocked := map[solana.PublicKey]uint64{}
	quoteLocked := map[solana.PublicKey]uint64{}
	st.Bids.Each(func(_ uint32, o matching.Order) bool {
		r, err := bidReserve(o.Price, o.Quantity, st.Market.PriceScale, o.FeeBps)
		require.NoError(t, err)
		quoteLocked[o.Owner] += r
		return true
	})
	st.Asks.Each(func(_ uint32, o matching.Order) bool {
		baseLocked[o.Owner] += o.Quantity
		return true
	})

	var baseSum, quoteSum int64
	for addr, oo := range st.OpenOrders {
		require.Equal(t, baseLocked[addr], oo.BaseLocked, "base locked of %s", addr)
		require.Equal(t, quoteLocked[addr], oo.QuoteLocked, "quote locked of %s", addr)
		baseSum += int64(oo.BaseFree + oo.BaseLocked)
		quoteSum += int64(oo.QuoteFree + oo.QuoteLocked)
	}
	m := st.Market
	require.Equal(t, baseSum, f.l.balance(m.BaseVault, m.BaseMint))
	require.Equal(t, quoteSum, f.l.balance(m.QuoteVault, m.QuoteMint))
	require.Equal(t, int64(m.FeesAccrued), f.l.balance(m.FeeVault, m.QuoteMint))
}
