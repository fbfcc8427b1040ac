package domain

import "context"

// WalletRepository 定义钱包聚合的持久化接口，由基础设施层实现。
type WalletRepository interface {
	// FindByUser 返回用户的钱包（含全部流水）。
	FindByUser(ctx context.Context, userID string) (*Wallet, error)

	// ApplyTransaction 是系统里唯一的资金写入口：
	// 原子地把 tx.Amount 加到余额上并追加流水。
	// 负数金额是条件更新（余额不足则失败返回 ErrInsufficientFunds），
	// 非负金额无条件生效。返回更新后的余额。
	ApplyTransaction(ctx context.Context, userID string, tx Transaction) (float64, error)

	// TransactionsByIssuer 返回所有以 issuerID 为关联键的流水，
	// 以及它们所属的用户。补偿逻辑靠它定位原始扣款和已有冲正。
	TransactionsByIssuer(ctx context.Context, issuerID string) (userID string, txs []Transaction, err error)
}
