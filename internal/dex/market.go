package dex

import (
	"github.com/gagliardetto/solana-go"
	"gopherdex.com/pkg/xerr"
)

const MarketVersion = 1

// Market 市场配置 + 可变计数器
// 只被管理操作（费率/暂停）和下单（序号）修改
type Market struct {
	Version             uint8            `json:"version"`
	Address             solana.PublicKey `json:"address"`
	Bump                uint8            `json:"bump"`
	Authority           solana.PublicKey `json:"authority"`
	BaseMint            solana.PublicKey `json:"baseMint"`
	QuoteMint           solana.PublicKey `json:"quoteMint"`
	BaseVault           solana.PublicKey `json:"baseVault"`
	QuoteVault          solana.PublicKey `json:"quoteVault"`
	FeeVault            solana.PublicKey `json:"feeVault"`
	Bids                solana.PublicKey `json:"bids"`
	Asks                solana.PublicKey `json:"asks"`
	OrderSequenceNumber uint64           `json:"orderSequenceNumber"`
	MakerFeeBps         uint16           `json:"makerFeeBps"`
	TakerFeeBps         uint16           `json:"takerFeeBps"`
	TickSize            uint64           `json:"tickSize"`
	BaseLotSize         uint64           `json:"baseLotSize"`
	MinBaseQty          uint64           `json:"minBaseQty"`
	MinNotional         uint64           `json:"minNotional"`
	PriceScale          uint64           `json:"priceScale"`
	BaseDecimals        uint8            `json:"baseDecimals"`
	QuoteDecimals       uint8            `json:"quoteDecimals"`
	Paused              bool             `json:"paused"`
	FeesAccrued         uint64           `json:"feesAccrued"`
	OpenOrdersDeposit   uint64           `json:"openOrdersDeposit"`
}

// MarketParams 初始化市场的入参，可选项为 0 时取默认值
type MarketParams struct {
	BaseMint          solana.PublicKey `json:"baseMint"`
	QuoteMint         solana.PublicKey `json:"quoteMint"`
	BaseDecimals      uint8            `json:"baseDecimals"`
	QuoteDecimals     uint8            `json:"quoteDecimals"`
	MakerFeeBps       uint16           `json:"makerFeeBps"`
	TakerFeeBps       uint16           `json:"takerFeeBps"`
	TickSize          uint64           `json:"tickSize"`
	BaseLotSize       uint64           `json:"baseLotSize"`
	MinBaseQty        uint64           `json:"minBaseQty,omitempty"`
	MinNotional       uint64           `json:"minNotional,omitempty"`
	PriceScale        uint64           `json:"priceScale,omitempty"`
	OpenOrdersDeposit uint64           `json:"openOrdersDeposit,omitempty"`

	// 可选：调用方自带的 vault，必须和派生地址一致
	BaseVault  solana.PublicKey `json:"baseVault"`
	QuoteVault solana.PublicKey `json:"quoteVault"`
	FeeVault   solana.PublicKey `json:"feeVault"`
}

func validateFees(maker, taker uint16) error {
	if maker > MaxFeeBps || taker > MaxFeeBps {
		return xerr.ErrInvalidFee
	}
	return nil
}

// Validate 和派生无关的静态校验
func (p MarketParams) Validate() error {
	if err := validateFees(p.MakerFeeBps, p.TakerFeeBps); err != nil {
		return err
	}
	if p.TickSize == 0 || p.BaseLotSize == 0 {
		return xerr.ErrInvalidMarketParams
	}
	if p.BaseMint.IsZero() || p.QuoteMint.IsZero() || p.BaseMint.Equals(p.QuoteMint) {
		return xerr.ErrInvalidMint
	}
	return nil
}

func checkVault(given, derived solana.PublicKey) error {
	if !given.IsZero() && !given.Equals(derived) {
		return xerr.ErrInvalidVault
	}
	return nil
}

// newMarket 校验参数、派生地址、填默认值
func newMarket(programID, authority solana.PublicKey, p MarketParams) (Market, error) {
	if err := p.Validate(); err != nil {
		return Market{}, err
	}
	addrs, err := DeriveAddresses(programID, p.BaseMint, p.QuoteMint)
	if err != nil {
		return Market{}, err
	}
	for _, c := range [][2]solana.PublicKey{
		{p.BaseVault, addrs.BaseVault},
		{p.QuoteVault, addrs.QuoteVault},
		{p.FeeVault, addrs.FeeVault},
	} {
		if err := checkVault(c[0], c[1]); err != nil {
			return Market{}, err
		}
	}

	m := Market{
		Version:           MarketVersion,
		Address:           addrs.Market,
		Bump:              addrs.Bump,
		Authority:         authority,
		BaseMint:          p.BaseMint,
		QuoteMint:         p.QuoteMint,
		BaseVault:         addrs.BaseVault,
		QuoteVault:        addrs.QuoteVault,
		FeeVault:          addrs.FeeVault,
		Bids:              addrs.Bids,
		Asks:              addrs.Asks,
		MakerFeeBps:       p.MakerFeeBps,
		TakerFeeBps:       p.TakerFeeBps,
		TickSize:          p.TickSize,
		BaseLotSize:       p.BaseLotSize,
		MinBaseQty:        p.MinBaseQty,
		MinNotional:       p.MinNotional,
		PriceScale:        p.PriceScale,
		BaseDecimals:      p.BaseDecimals,
		QuoteDecimals:     p.QuoteDecimals,
		OpenOrdersDeposit: p.OpenOrdersDeposit,
	}
	if m.MinBaseQty == 0 {
		m.MinBaseQty = DefaultMinBaseQty
	}
	if m.MinNotional == 0 {
		m.MinNotional = DefaultMinNotional
	}
	if m.PriceScale == 0 {
		m.PriceScale = DefaultPriceScale
	}
	return m, nil
}

// Crossed 买价 >= 卖价
func Crossed(bidPrice, askPrice uint64) bool { return bidPrice >= askPrice }

// vaultFor base 资产进 base vault，quote 进 quote vault
func (m *Market) vaultFor(mint solana.PublicKey) solana.PublicKey {
	if mint.Equals(m.BaseMint) {
		return m.BaseVault
	}
	return m.QuoteVault
}

// checkOrder 下单参数校验，顺序和错误码一一对应
func (m *Market) checkOrder(price, qty uint64) error {
	if m.Paused {
		return xerr.ErrPaused
	}
	if price == 0 || qty == 0 {
		return xerr.ErrInvalidOrderInput
	}
	if price%m.TickSize != 0 {
		return xerr.ErrInvalidTickSize
	}
	if qty%m.BaseLotSize != 0 {
		return xerr.ErrInvalidLotSize
	}
	if qty < m.MinBaseQty {
		return xerr.ErrBelowMinBaseQty
	}
	n, err := notional(price, qty, m.PriceScale)
	if err != nil {
		return err
	}
	if n < m.MinNotional {
		return xerr.ErrBelowMinNotional
	}
	return nil
}
