package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/logger"
	"mercato/internal/service/warehouse/domain"
	"mercato/internal/service/warehouse/domain/port"
)

// WarehouseService 实现库存侧的全部用例。
// 与资金侧一样，并发安全只依赖仓储的条件更新。
type WarehouseService struct {
	repo     domain.WarehouseRepository
	notifier port.AlarmNotifier
	tracer   trace.Tracer
}

func NewWarehouseService(repo domain.WarehouseRepository, notifier port.AlarmNotifier, tracer trace.Tracer) *WarehouseService {
	return &WarehouseService{repo: repo, notifier: notifier, tracer: tracer}
}

// Reserve 为订单预占库存。数量不足返回 domain.ErrInsufficientStock。
// 成功后若剩余数量跌破告警阈值，发出一条低库存通知。
func (s *WarehouseService) Reserve(ctx context.Context, warehouseID, productID string, qty int, orderID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "warehouse.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("warehouse.id", warehouseID),
		attribute.String("product.id", productID),
		attribute.Int("quantity", qty),
		attribute.String("order.id", orderID),
	)

	if qty <= 0 {
		return 0, fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}

	id := orderID
	product, err := s.repo.AdjustQuantity(ctx, warehouseID, domain.WarehouseTransaction{
		OrderID:   &id,
		ProductID: productID,
		Quantity:  -qty,
		Status:    domain.StatusConfirmed,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation rejected")
		return 0, err
	}

	logger.Ctx(ctx).Info().
		Str("warehouse", warehouseID).Str("product", productID).
		Int("qty", qty).Int("remaining", product.Quantity).Str("order", orderID).
		Msg("stock reserved")

	s.checkAlarmThreshold(ctx, warehouseID, *product)
	return product.Quantity, nil
}

// Release 无条件回库，用于补偿。
func (s *WarehouseService) Release(ctx context.Context, warehouseID, productID string, qty int, orderID string, status domain.TransactionStatus) error {
	ctx, span := s.tracer.Start(ctx, "warehouse.Release")
	defer span.End()

	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}
	id := orderID
	_, err := s.repo.AdjustQuantity(ctx, warehouseID, domain.WarehouseTransaction{
		OrderID:   &id,
		ProductID: productID,
		Quantity:  qty,
		Status:    status,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Info().
		Str("warehouse", warehouseID).Str("product", productID).Int("qty", qty).Str("order", orderID).
		Msg("stock released")
	return nil
}

// Inventory 返回仓库的库存清单。
func (s *WarehouseService) Inventory(ctx context.Context, warehouseID string) ([]domain.WarehouseProduct, error) {
	warehouse, err := s.repo.FindByID(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	return warehouse.Inventory, nil
}

// EditProduct 管理员调整库存量。商品不存在且增量合法时落为新增。
func (s *WarehouseService) EditProduct(ctx context.Context, warehouseID string, product domain.WarehouseProduct) error {
	ctx, span := s.tracer.Start(ctx, "warehouse.EditProduct")
	defer span.End()

	updated, err := s.repo.AdjustQuantity(ctx, warehouseID, domain.WarehouseTransaction{
		OrderID:   nil,
		ProductID: product.ProductID,
		Quantity:  product.Quantity,
		Status:    domain.StatusAdminEdit,
	})
	if err == nil {
		s.checkAlarmThreshold(ctx, warehouseID, *updated)
		return nil
	}
	if err != domain.ErrProductNotFound {
		span.RecordError(err)
		return err
	}

	if product.Quantity < 0 {
		return fmt.Errorf("cannot create product %s with negative quantity", product.ProductID)
	}
	if product.AlarmThreshold < 0 {
		return fmt.Errorf("cannot create product %s with negative alarm threshold", product.ProductID)
	}
	return s.AddProduct(ctx, warehouseID, product)
}

// AddProduct 向仓库新增商品行。
func (s *WarehouseService) AddProduct(ctx context.Context, warehouseID string, product domain.WarehouseProduct) error {
	if product.Quantity < 0 {
		return fmt.Errorf("negative product quantity")
	}
	if product.AlarmThreshold < 0 {
		return fmt.Errorf("negative alarm threshold")
	}
	if err := s.repo.AddProduct(ctx, warehouseID, product); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("warehouse", warehouseID).Str("product", product.ProductID).Msg("product added")
	s.checkAlarmThreshold(ctx, warehouseID, product)
	return nil
}

// EditAlarm 更新告警阈值。
func (s *WarehouseService) EditAlarm(ctx context.Context, warehouseID, productID string, threshold int) error {
	if threshold < 0 {
		return fmt.Errorf("invalid alarm threshold %d", threshold)
	}
	return s.repo.SetAlarmThreshold(ctx, warehouseID, productID, threshold)
}

// Rollback 冲正订单在所有仓库的净出库。
// 幂等：每个商品只回补"预占减去已回补"的差额，重放时差额为零。
func (s *WarehouseService) Rollback(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "warehouse.Rollback")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	warehouses, err := s.repo.WarehousesByOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(warehouses) == 0 {
		logger.Ctx(ctx).Info().Str("order", orderID).Msg("no reservations found for order, nothing to roll back")
		span.AddEvent("CompensationNoOp")
		return nil
	}

	for _, warehouse := range warehouses {
		outstanding := warehouse.OutstandingByOrder(orderID)
		if len(outstanding) == 0 {
			continue
		}
		for productID, qty := range outstanding {
			if err := s.Release(ctx, warehouse.ID, productID, qty, orderID, domain.StatusRollback); err != nil {
				// 回库失败会随消息重投重试，这里记录后继续处理其它商品
				logger.Ctx(ctx).Error().Err(err).
					Str("warehouse", warehouse.ID).Str("product", productID).Str("order", orderID).
					Msg("rollback release failed")
				span.RecordError(err)
			}
		}
		logger.Ctx(ctx).Info().Str("warehouse", warehouse.ID).Str("order", orderID).Msg("warehouse rolled back")
	}
	return nil
}

// checkAlarmThreshold 在数量跌破阈值时通知仓库管理员。
func (s *WarehouseService) checkAlarmThreshold(ctx context.Context, warehouseID string, product domain.WarehouseProduct) {
	if product.Quantity >= product.AlarmThreshold {
		return
	}
	warehouse, err := s.repo.FindByID(ctx, warehouseID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("warehouse", warehouseID).Msg("cannot load warehouse for alarm notification")
		return
	}
	if err := s.notifier.NotifyLowStock(ctx, warehouse, product); err != nil {
		// 通知是尽力而为的，失败不影响预占
		logger.Ctx(ctx).Error().Err(err).
			Str("warehouse", warehouseID).Str("product", product.ProductID).
			Msg("low stock notification failed")
	}
}
