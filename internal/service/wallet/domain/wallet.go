package domain

import (
	"errors"
	"time"
)

// Motivation 标记一笔资金变动的来源。
type Motivation string

const (
	MotivationOrderPayment    Motivation = "ORDER_PAYMENT"
	MotivationAutomatedRefund Motivation = "AUTOMATED_REFUND"
	MotivationFundsDeposit    Motivation = "FUNDS_DEPOSIT"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Transaction 是钱包流水。IssuerID 是关联键：
// 订单扣款时为订单号，补偿时沿用同一订单号，靠它找到要冲正的那笔。
type Transaction struct {
	IssuerID   string
	Amount     float64 // 有符号，扣款为负
	Motivation Motivation
	CreatedAt  time.Time
}

// Wallet 是资金聚合根。Funds 恒等于全部流水金额之和，
// 这个不变式由仓储层的条件更新维护，从不懒算。
type Wallet struct {
	UserID       string
	Funds        float64
	Transactions []Transaction
}

// NewTransaction 构造一笔流水。
func NewTransaction(issuerID string, amount float64, motivation Motivation) Transaction {
	return Transaction{
		IssuerID:   issuerID,
		Amount:     amount,
		Motivation: motivation,
		CreatedAt:  time.Now(),
	}
}
