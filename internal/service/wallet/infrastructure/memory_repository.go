package infrastructure

import (
	"context"
	"sync"

	"mercato/internal/service/wallet/domain"
)

// MemoryWalletRepository 是 WalletRepository 的内存实现，
// 用于测试和本地单机模式。条件检查和写入在同一把锁内完成，
// 对外表现出与 MySQL 实现相同的原子语义。
type MemoryWalletRepository struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet
}

func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{wallets: make(map[string]*domain.Wallet)}
}

// Seed 预置一个钱包，仅用于测试和本地启动。
func (r *MemoryWalletRepository) Seed(userID string, funds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[userID] = &domain.Wallet{UserID: userID, Funds: funds}
}

func (r *MemoryWalletRepository) FindByUser(_ context.Context, userID string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	cp.Transactions = append([]domain.Transaction(nil), w.Transactions...)
	return &cp, nil
}

func (r *MemoryWalletRepository) ApplyTransaction(_ context.Context, userID string, tx domain.Transaction) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return 0, domain.ErrWalletNotFound
	}
	if tx.Amount < 0 && w.Funds+tx.Amount < 0 {
		return 0, domain.ErrInsufficientFunds
	}
	w.Funds += tx.Amount
	w.Transactions = append(w.Transactions, tx)
	return w.Funds, nil
}

func (r *MemoryWalletRepository) TransactionsByIssuer(_ context.Context, issuerID string) (string, []domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, w := range r.wallets {
		var txs []domain.Transaction
		for _, tx := range w.Transactions {
			if tx.IssuerID == issuerID {
				txs = append(txs, tx)
			}
		}
		if len(txs) > 0 {
			return userID, txs, nil
		}
	}
	return "", nil, nil
}
