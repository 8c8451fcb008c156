package dex

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID 部署在链上的撮合程序地址，PDA 都从它派生
var DefaultProgramID = solana.MustPublicKeyFromBase58("6Kw1m5tG9E6Hh9TSzuofdCbjLLtjdRuQGFhiFDuZaJuL")

// DepositMint open orders 押金按原生 SOL 计
var DepositMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

var (
	seedMarket     = []byte("market")
	seedBids       = []byte("bids")
	seedAsks       = []byte("asks")
	seedBaseVault  = []byte("base_vault")
	seedQuoteVault = []byte("quote_vault")
	seedFeeVault   = []byte("fee_vault")
	seedOpenOrders = []byte("open_orders")
)

// Addresses 一个交易对的全部派生账户
type Addresses struct {
	Market     solana.PublicKey `json:"market"`
	Bump       uint8            `json:"bump"`
	Bids       solana.PublicKey `json:"bids"`
	Asks       solana.PublicKey `json:"asks"`
	BaseVault  solana.PublicKey `json:"baseVault"`
	QuoteVault solana.PublicKey `json:"quoteVault"`
	FeeVault   solana.PublicKey `json:"feeVault"`
}

func DeriveAddresses(programID, baseMint, quoteMint solana.PublicKey) (Addresses, error) {
	var (
		out Addresses
		err error
	)
	pair := func(seed []byte) (solana.PublicKey, error) {
		k, _, e := solana.FindProgramAddress([][]byte{seed, baseMint[:], quoteMint[:]}, programID)
		return k, e
	}
	if out.Market, out.Bump, err = solana.FindProgramAddress([][]byte{seedMarket, baseMint[:], quoteMint[:]}, programID); err != nil {
		return out, fmt.Errorf("derive market: %w", err)
	}
	if out.Bids, err = pair(seedBids); err != nil {
		return out, fmt.Errorf("derive bids: %w", err)
	}
	if out.Asks, err = pair(seedAsks); err != nil {
		return out, fmt.Errorf("derive asks: %w", err)
	}
	if out.FeeVault, err = pair(seedFeeVault); err != nil {
		return out, fmt.Errorf("derive fee vault: %w", err)
	}
	if out.BaseVault, _, err = solana.FindProgramAddress([][]byte{seedBaseVault, out.Market[:]}, programID); err != nil {
		return out, fmt.Errorf("derive base vault: %w", err)
	}
	if out.QuoteVault, _, err = solana.FindProgramAddress([][]byte{seedQuoteVault, out.Market[:]}, programID); err != nil {
		return out, fmt.Errorf("derive quote vault: %w", err)
	}
	return out, nil
}

// MarketAddress 只算市场地址，网关按 mint 对查市场时用
func MarketAddress(programID, baseMint, quoteMint solana.PublicKey) (solana.PublicKey, error) {
	k, _, err := solana.FindProgramAddress([][]byte{seedMarket, baseMint[:], quoteMint[:]}, programID)
	return k, err
}

// OpenOrdersAddress 每个 (market, owner) 一个账户
func OpenOrdersAddress(programID, market, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedOpenOrders, market[:], owner[:]}, programID)
}
