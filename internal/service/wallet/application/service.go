package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/logger"
	"mercato/internal/service/wallet/domain"
)

// WalletService 实现资金侧的全部用例。
// 并发安全完全依赖仓储的条件更新，这里没有任何锁。
type WalletService struct {
	repo   domain.WalletRepository
	tracer trace.Tracer
}

func NewWalletService(repo domain.WalletRepository, tracer trace.Tracer) *WalletService {
	return &WalletService{repo: repo, tracer: tracer}
}

// Debit 按订单号扣款。amount 必须为正。
// 余额不足返回 domain.ErrInsufficientFunds，钱包不存在返回 domain.ErrWalletNotFound，
// 二者都是业务拒绝，调用方不应重试。
func (s *WalletService) Debit(ctx context.Context, userID string, amount float64, correlationID string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.Debit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("order.id", correlationID),
		attribute.Float64("amount", amount),
	)

	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %v", amount)
	}

	tx := domain.NewTransaction(correlationID, -amount, domain.MotivationOrderPayment)
	funds, err := s.repo.ApplyTransaction(ctx, userID, tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit rejected")
		logger.Ctx(ctx).Debug().Err(err).Str("user", userID).Str("order", correlationID).Msg("debit failed")
		return 0, err
	}

	logger.Ctx(ctx).Info().Str("user", userID).Str("order", correlationID).Float64("funds", funds).Msg("debit applied")
	return funds, nil
}

// Deposit 无条件入账，用于普通充值。
func (s *WalletService) Deposit(ctx context.Context, userID string, amount float64, issuerID string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.Deposit")
	defer span.End()

	if amount < 0 {
		return 0, fmt.Errorf("deposit amount must be non-negative, got %v", amount)
	}
	tx := domain.NewTransaction(issuerID, amount, domain.MotivationFundsDeposit)
	return s.repo.ApplyTransaction(ctx, userID, tx)
}

// Funds 返回当前余额。
func (s *WalletService) Funds(ctx context.Context, userID string) (float64, error) {
	wallet, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return wallet.Funds, nil
}

// Transactions 返回用户的全部流水。
func (s *WalletService) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	wallet, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return wallet.Transactions, nil
}

// Compensate 冲正 correlationID（订单号）名下的扣款。
// 幂等：没有对应扣款、或已存在同关联键的退款时，直接返回 nil。
// 退款是无条件入账，金额为原扣款的相反数。
func (s *WalletService) Compensate(ctx context.Context, correlationID string) error {
	ctx, span := s.tracer.Start(ctx, "wallet.Compensate")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", correlationID))

	userID, txs, err := s.repo.TransactionsByIssuer(ctx, correlationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var payment *domain.Transaction
	for i := range txs {
		switch txs[i].Motivation {
		case domain.MotivationAutomatedRefund:
			// 已经冲正过，重复投递，无事可做
			logger.Ctx(ctx).Info().Str("order", correlationID).Msg("compensation already applied, skipping")
			span.AddEvent("CompensationNoOp")
			return nil
		case domain.MotivationOrderPayment:
			payment = &txs[i]
		}
	}

	if payment == nil {
		// 订单从未扣到款（比如扣款本身就失败了），无事可做
		logger.Ctx(ctx).Info().Str("order", correlationID).Msg("no payment found for order, nothing to compensate")
		span.AddEvent("CompensationNoOp")
		return nil
	}

	refund := domain.NewTransaction(correlationID, -payment.Amount, domain.MotivationAutomatedRefund)
	funds, err := s.repo.ApplyTransaction(ctx, userID, refund)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund failed")
		return fmt.Errorf("apply refund for order %s: %w", correlationID, err)
	}

	logger.Ctx(ctx).Info().Str("user", userID).Str("order", correlationID).Float64("funds", funds).Msg("payment compensated")
	return nil
}
