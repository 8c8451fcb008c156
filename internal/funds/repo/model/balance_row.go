package model

import "time"

// BalanceRow 某账户某 mint 的余额；vault 也是账户
type BalanceRow struct {
	Account   string    `gorm:"column:account;primaryKey;type:varchar(44);not null"`
	Mint      string    `gorm:"column:mint;primaryKey;type:varchar(44);not null"`
	Amount    uint64    `gorm:"column:amount;type:bigint unsigned;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BalanceRow) TableName() string {
	return "balances"
}

// LedgerOp 已执行过的 batch key，用于回放幂等
type LedgerOp struct {
	Key       string    `gorm:"column:op_key;primaryKey;type:varchar(128);not null"`
	Market    string    `gorm:"column:market;type:varchar(44);not null;index"`
	Hash      []byte    `gorm:"column:batch_hash;type:binary(32);not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerOp) TableName() string {
	return "ledger_ops"
}
