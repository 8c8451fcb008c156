package dex

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

type TransferKind uint8

const (
	TransferToVault      TransferKind = iota + 1 // 用户外部账户 -> 市场 vault
	TransferFromVault                            // vault -> 用户外部账户
	TransferVaultToVault                         // quote vault -> fee vault
)

func (k TransferKind) String() string {
	switch k {
	case TransferToVault:
		return "to_vault"
	case TransferFromVault:
		return "from_vault"
	case TransferVaultToVault:
		return "vault_to_vault"
	default:
		return "unknown"
	}
}

type Transfer struct {
	Kind   TransferKind     `json:"kind"`
	Mint   solana.PublicKey `json:"mint"`
	From   solana.PublicKey `json:"from"`
	To     solana.PublicKey `json:"to"`
	Amount uint64           `json:"amount"`
}

// Batch 一次操作产生的全部转账，要么全成功要么全失败
// Key 相同的 batch 只执行一次（WAL 回放会用同一个 key 再调一遍）
type Batch struct {
	Key       string           `json:"key"`
	Market    solana.PublicKey `json:"market"`
	Transfers []Transfer       `json:"transfers"`
}

// TokenLedger 外部代币账本；核心只决定转多少、从哪到哪
type TokenLedger interface {
	Apply(ctx context.Context, b Batch) error
}

// NopLedger 什么都不做，永远成功
type NopLedger struct{}

func (NopLedger) Apply(context.Context, Batch) error { return nil }
