package mysql

import (
	"bytes"
	"context"
	"errors"

	"gopherdex.com/internal/dex"
	"gopherdex.com/internal/funds/repo"
	"gopherdex.com/internal/funds/repo/model"
	"gopherdex.com/pkg/orm"
	"gopherdex.com/pkg/xerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errApplied 事务内标记：key 已执行过，回滚后当成功返回
var errApplied = errors.New("batch already applied")

type balancesRepo struct {
	db *gorm.DB
}

func NewBalancesRepo(db *gorm.DB) repo.Repo {
	return &balancesRepo{db: db}
}

// Migrate 建表，服务启动时调用
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&model.BalanceRow{}, &model.LedgerOp{})
}

func (r *balancesRepo) GetBalance(ctx context.Context, account, mint string) (model.BalanceRow, bool, error) {
	var row model.BalanceRow
	err := r.db.WithContext(ctx).
		Where("account = ? AND mint = ?", account, mint).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.BalanceRow{Account: account, Mint: mint}, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}

func (r *balancesRepo) ListBalances(ctx context.Context, account string, page, limit int) ([]model.BalanceRow, error) {
	// 最小防呆，避免空 account 全表扫
	if account == "" {
		return []model.BalanceRow{}, nil
	}
	q := r.db.WithContext(ctx).
		Model(&model.BalanceRow{}).
		Where("account = ?", account).
		Order("mint ASC")

	var rows []model.BalanceRow
	if err := orm.ApplyPagination(q, page, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *balancesRepo) ApplyBatch(ctx context.Context, b dex.Batch) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) 抢占 key（同一事务）
		if b.Key != "" {
			h := repo.BatchHash(b)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.LedgerOp{Key: b.Key, Market: b.Market.String(), Hash: h[:]})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var op model.LedgerOp
				if err := tx.Where("op_key = ?", b.Key).Take(&op).Error; err != nil {
					return err
				}
				if !bytes.Equal(op.Hash, h[:]) {
					return repo.ErrKeyConflict
				}
				return errApplied
			}
		}

		// 2) 逐笔转账：扣款带余额条件，加款 upsert
		for _, tr := range b.Transfers {
			mint := tr.Mint.String()
			res := tx.Model(&model.BalanceRow{}).
				Where("account = ? AND mint = ? AND amount >= ?", tr.From.String(), mint, tr.Amount).
				UpdateColumn("amount", gorm.Expr("amount - ?", tr.Amount))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return xerr.ErrInsufficientFunds
			}
			if err := credit(tx, tr.To.String(), mint, tr.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errApplied) {
		return nil
	}
	return err
}

func (r *balancesRepo) Credit(ctx context.Context, account, mint string, amount uint64) error {
	return credit(r.db.WithContext(ctx), account, mint, amount)
}

func credit(tx *gorm.DB, account, mint string, amount uint64) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "mint"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"amount": gorm.Expr("amount + ?", amount)}),
	}).Create(&model.BalanceRow{Account: account, Mint: mint, Amount: amount}).Error
}

func (r *balancesRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
