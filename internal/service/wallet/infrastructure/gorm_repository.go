package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercato/internal/service/wallet/domain"
)

// WalletModel / WalletTransactionModel 是数据库模型，与领域模型隔离。
type WalletModel struct {
	UserID string  `gorm:"column:user_id;primaryKey"`
	Funds  float64 `gorm:"column:funds"`
}

func (WalletModel) TableName() string { return "wallets" }

type WalletTransactionModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	UserID     string    `gorm:"column:user_id;index"`
	IssuerID   string    `gorm:"column:issuer_id;index"`
	Amount     float64   `gorm:"column:amount"`
	Motivation string    `gorm:"column:motivation"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (WalletTransactionModel) TableName() string { return "wallet_transactions" }

// GormWalletRepository 是 WalletRepository 的 MySQL 实现。
type GormWalletRepository struct {
	db *gorm.DB
}

func NewGormWalletRepository(db *gorm.DB) (*GormWalletRepository, error) {
	if err := db.AutoMigrate(&WalletModel{}, &WalletTransactionModel{}); err != nil {
		return nil, errors.Wrap(err, "wallet schema migration")
	}
	return &GormWalletRepository{db: db}, nil
}

func (r *GormWalletRepository) FindByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	var model WalletModel
	if err := r.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	var txModels []WalletTransactionModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&txModels).Error; err != nil {
		return nil, err
	}

	wallet := &domain.Wallet{UserID: model.UserID, Funds: model.Funds}
	for _, tm := range txModels {
		wallet.Transactions = append(wallet.Transactions, toDomainTransaction(tm))
	}
	return wallet, nil
}

// ApplyTransaction 用单条带条件的 UPDATE 实现乐观更新：
// 扣款时 WHERE 子句带余额下限，没命中任何行就说明余额不足（或钱包不存在），
// 余额更新和流水插入在同一个数据库事务里提交。
func (r *GormWalletRepository) ApplyTransaction(ctx context.Context, userID string, tx domain.Transaction) (float64, error) {
	var funds float64
	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		update := dbtx.Model(&WalletModel{}).
			Where("user_id = ?", userID)
		if tx.Amount < 0 {
			update = update.Where("funds >= ?", -tx.Amount)
		}
		res := update.Update("funds", gorm.Expr("funds + ?", tx.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 区分钱包不存在和余额不足
			var count int64
			if err := dbtx.Model(&WalletModel{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrWalletNotFound
			}
			return domain.ErrInsufficientFunds
		}

		if err := dbtx.Create(&WalletTransactionModel{
			UserID:     userID,
			IssuerID:   tx.IssuerID,
			Amount:     tx.Amount,
			Motivation: string(tx.Motivation),
			CreatedAt:  tx.CreatedAt,
		}).Error; err != nil {
			return errors.Wrap(err, "append wallet transaction")
		}

		var model WalletModel
		if err := dbtx.First(&model, "user_id = ?", userID).Error; err != nil {
			return err
		}
		funds = model.Funds
		return nil
	})
	if err != nil {
		return 0, err
	}
	return funds, nil
}

func (r *GormWalletRepository) TransactionsByIssuer(ctx context.Context, issuerID string) (string, []domain.Transaction, error) {
	var txModels []WalletTransactionModel
	if err := r.db.WithContext(ctx).Where("issuer_id = ?", issuerID).Order("id").Find(&txModels).Error; err != nil {
		return "", nil, err
	}
	if len(txModels) == 0 {
		return "", nil, nil
	}

	txs := make([]domain.Transaction, 0, len(txModels))
	for _, tm := range txModels {
		txs = append(txs, toDomainTransaction(tm))
	}
	return txModels[0].UserID, txs, nil
}

func toDomainTransaction(tm WalletTransactionModel) domain.Transaction {
	return domain.Transaction{
		IssuerID:   tm.IssuerID,
		Amount:     tm.Amount,
		Motivation: domain.Motivation(tm.Motivation),
		CreatedAt:  tm.CreatedAt,
	}
}
