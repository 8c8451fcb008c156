package dex

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"gopherdex.com/internal/matching"
	"gopherdex.com/pkg/xerr"
)

// Op 一次操作的执行环境
// Seq 是持久化命令序号，作为账本幂等 key；Emit 只在提交后收到事件
type Op struct {
	Seq  uint64
	Emit Emitter
}

// State 一个市场的全部状态
type State struct {
	Market     Market
	Bids       matching.Book
	Asks       matching.Book
	OpenOrders map[solana.PublicKey]*OpenOrders // key: open orders 地址
}

func (s *State) book(side matching.Side) *matching.Book {
	if side == matching.Bid {
		return &s.Bids
	}
	return &s.Asks
}

// Processor 单个市场的状态机；不是并发安全的，由外层串行调用
type Processor struct {
	programID solana.PublicKey
	ledger    TokenLedger
	st        *State
}

func NewProcessor(programID solana.PublicKey, ledger TokenLedger) *Processor {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	if ledger == nil {
		ledger = NopLedger{}
	}
	return &Processor{programID: programID, ledger: ledger}
}

func (p *Processor) ProgramID() solana.PublicKey { return p.programID }

// SetLedger 换账本；回放完切回正式账本时用
func (p *Processor) SetLedger(l TokenLedger) {
	if l == nil {
		l = NopLedger{}
	}
	p.ledger = l
}

func (p *Processor) Initialized() bool { return p.st != nil }

func (p *Processor) Market() (Market, bool) {
	if p.st == nil {
		return Market{}, false
	}
	return p.st.Market, true
}

func (p *Processor) state() (*State, error) {
	if p.st == nil {
		return nil, xerr.ErrMarketNotInitialized
	}
	return p.st, nil
}

// OpenOrdersAddress owner 在本市场的账户地址
func (p *Processor) OpenOrdersAddress(owner solana.PublicKey) (solana.PublicKey, error) {
	st, err := p.state()
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := OpenOrdersAddress(p.programID, st.Market.Address, owner)
	return addr, err
}

type InitMarketRequest struct {
	Payer  solana.PublicKey `json:"payer"`
	Params MarketParams     `json:"params"`
}

// InitializeMarket 建市场和两个空订单簿；payer 成为管理员
func (p *Processor) InitializeMarket(ctx context.Context, op Op, req InitMarketRequest) (Market, error) {
	if p.st != nil {
		return Market{}, xerr.ErrMarketAlreadyInitialized
	}
	m, err := newMarket(p.programID, req.Payer, req.Params)
	if err != nil {
		return Market{}, err
	}
	st := &State{Market: m, OpenOrders: make(map[solana.PublicKey]*OpenOrders)}
	st.Bids.Init(matching.Bid)
	st.Asks.Init(matching.Ask)

	p.st = st
	emitTo(op, Event{
		Type:        EvMarketInitialized,
		Market:      m.Address,
		BaseMint:    m.BaseMint,
		QuoteMint:   m.QuoteMint,
		MakerFeeBps: m.MakerFeeBps,
		TakerFeeBps: m.TakerFeeBps,
		TickSize:    m.TickSize,
		BaseLotSize: m.BaseLotSize,
	})
	return m, nil
}

// SetFees 仅管理员
func (p *Processor) SetFees(ctx context.Context, op Op, caller solana.PublicKey, makerBps, takerBps uint16) error {
	st, err := p.state()
	if err != nil {
		return err
	}
	if !caller.Equals(st.Market.Authority) {
		return xerr.ErrUnauthorized
	}
	if err := validateFees(makerBps, takerBps); err != nil {
		return err
	}
	st.Market.MakerFeeBps = makerBps
	st.Market.TakerFeeBps = takerBps
	emitTo(op, Event{Type: EvFeesUpdated, Market: st.Market.Address, MakerFeeBps: makerBps, TakerFeeBps: takerBps})
	return nil
}

// SetPause 仅管理员；暂停只拦下单和撮合
func (p *Processor) SetPause(ctx context.Context, op Op, caller solana.PublicKey, paused bool) error {
	st, err := p.state()
	if err != nil {
		return err
	}
	if !caller.Equals(st.Market.Authority) {
		return xerr.ErrUnauthorized
	}
	st.Market.Paused = paused
	emitTo(op, Event{Type: EvPause, Market: st.Market.Address, Paused: paused})
	return nil
}

func emitTo(op Op, evs ...Event) {
	if op.Emit == nil {
		return
	}
	for _, ev := range evs {
		op.Emit.Emit(ev)
	}
}

// txn 一次操作的草稿：订单簿按值拷贝，账户按需克隆
// 账本转账成功后才整体写回，中途任何错误都直接丢弃草稿
type txn struct {
	p      *Processor
	market Market
	bids   *matching.Book
	asks   *matching.Book
	oo     map[solana.PublicKey]*OpenOrders
	closed map[solana.PublicKey]bool
	batch  []Transfer
	events []Event
}

func (p *Processor) begin() (*txn, error) {
	st, err := p.state()
	if err != nil {
		return nil, err
	}
	return &txn{
		p:      p,
		market: st.Market,
		oo:     make(map[solana.PublicKey]*OpenOrders, 2),
	}, nil
}

func (t *txn) book(side matching.Side) *matching.Book {
	if side == matching.Bid {
		if t.bids == nil {
			cp := t.p.st.Bids
			t.bids = &cp
		}
		return t.bids
	}
	if t.asks == nil {
		cp := t.p.st.Asks
		t.asks = &cp
	}
	return t.asks
}

// openOrders 取草稿里的账户，没有就从正式状态克隆一份
func (t *txn) openOrders(addr solana.PublicKey) (*OpenOrders, bool) {
	if o, ok := t.oo[addr]; ok {
		return o, !t.closed[addr]
	}
	o, ok := t.p.st.OpenOrders[addr]
	if !ok {
		return nil, false
	}
	cp := o.clone()
	t.oo[addr] = cp
	return cp, true
}

// ownerAccount signer 的账户；create 为 true 时不存在就新建（收押金）
func (t *txn) ownerAccount(owner solana.PublicKey, create bool) (*OpenOrders, error) {
	addr, bump, err := OpenOrdersAddress(t.p.programID, t.market.Address, owner)
	if err != nil {
		return nil, fmt.Errorf("derive open orders: %w", err)
	}
	if o, ok := t.openOrders(addr); ok {
		return o, nil
	}
	if !create {
		return nil, xerr.ErrOpenOrdersNotFound
	}
	o := &OpenOrders{
		Address: addr,
		Bump:    bump,
		Market:  t.market.Address,
		Owner:   owner,
		Deposit: t.market.OpenOrdersDeposit,
	}
	if o.Deposit > 0 {
		t.transfer(Transfer{Kind: TransferToVault, Mint: DepositMint, From: owner, To: addr, Amount: o.Deposit})
	}
	t.oo[addr] = o
	delete(t.closed, addr)
	return o, nil
}

func (t *txn) close(addr solana.PublicKey) {
	if t.closed == nil {
		t.closed = make(map[solana.PublicKey]bool, 1)
	}
	t.closed[addr] = true
}

func (t *txn) transfer(tr Transfer) {
	if tr.Amount == 0 {
		return
	}
	t.batch = append(t.batch, tr)
}

func (t *txn) emit(ev Event) {
	ev.Market = t.market.Address
	t.events = append(t.events, ev)
}

// commit 先让账本执行转账，成功后写回状态、发事件
func (t *txn) commit(ctx context.Context, op Op) error {
	if len(t.batch) > 0 {
		b := Batch{Market: t.market.Address, Transfers: t.batch}
		if op.Seq > 0 {
			b.Key = fmt.Sprintf("%s:%d", t.market.Address, op.Seq)
		}
		if err := t.p.ledger.Apply(ctx, b); err != nil {
			return err
		}
	}
	st := t.p.st
	st.Market = t.market
	if t.bids != nil {
		st.Bids = *t.bids
	}
	if t.asks != nil {
		st.Asks = *t.asks
	}
	for addr, o := range t.oo {
		if t.closed[addr] {
			delete(st.OpenOrders, addr)
			continue
		}
		st.OpenOrders[addr] = o
	}
	emitTo(op, t.events...)
	return nil
}
