package application

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/logger"
	"mercato/internal/service/warehouse/domain"
)

// DeliveryPlan 是一个仓库承担的那部分订单。
type DeliveryPlan struct {
	WarehouseID string         `json:"warehouseId"`
	Products    map[string]int `json:"products"`
}

// Allocator 把一张订单拆分到多个仓库。
// 策略是贪心的"大库存优先"：每轮选剩余需求量最大的商品，
// 再选持有该商品最多的仓库，能拿多少拿多少。
// 它只减少经手的仓库数，不保证全局最优。
type Allocator struct {
	repo   domain.WarehouseRepository
	svc    *WarehouseService
	tracer trace.Tracer
}

func NewAllocator(repo domain.WarehouseRepository, svc *WarehouseService, tracer trace.Tracer) *Allocator {
	return &Allocator{repo: repo, svc: svc, tracer: tracer}
}

// CreateDeliveryList 为订单分配库存，返回按仓库聚合的配送计划。
// 任何商品在所有仓库都无货时整单失败：先冲正此前在本订单名下
// 预占的一切，再返回 domain.ErrNoStockAnywhere。
// 预占和选仓之间输掉并发竞争时，同一轮内换下一个仓库重试。
func (a *Allocator) CreateDeliveryList(ctx context.Context, orderID string, cart map[string]int) ([]DeliveryPlan, error) {
	ctx, span := a.tracer.Start(ctx, "warehouse.CreateDeliveryList")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	remaining := make(map[string]int, len(cart))
	for productID, qty := range cart {
		if qty > 0 {
			remaining[productID] = qty
		}
	}

	plans := make(map[string]map[string]int)
	// 本轮竞争失败过的仓库，换商品后重置
	excluded := make(map[string]bool)
	lastProduct := ""

	for len(remaining) > 0 {
		productID := mostDemanded(remaining)
		if productID != lastProduct {
			excluded = make(map[string]bool)
			lastProduct = productID
		}

		levels, err := a.repo.StockLevels(ctx, productID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		var candidate *domain.StockLevel
		for i := range levels {
			if !excluded[levels[i].WarehouseID] {
				candidate = &levels[i]
				break
			}
		}
		if candidate == nil {
			// 无处可拿，整单失败并冲正已预占的部分
			logger.Ctx(ctx).Warn().Str("order", orderID).Str("product", productID).
				Msg("no warehouse holds stock, rolling back allocation")
			span.SetStatus(codes.Error, "allocation failed")
			if rbErr := a.svc.Rollback(ctx, orderID); rbErr != nil {
				logger.Ctx(ctx).Error().Err(rbErr).Str("order", orderID).Msg("allocation rollback failed")
			}
			return nil, fmt.Errorf("allocate product %s: %w", productID, domain.ErrNoStockAnywhere)
		}

		take := remaining[productID]
		if candidate.Quantity < take {
			take = candidate.Quantity
		}

		if _, err := a.svc.Reserve(ctx, candidate.WarehouseID, productID, take, orderID); err != nil {
			if err == domain.ErrInsufficientStock {
				// 选仓后的读已经过期，跳过这个仓库再选
				excluded[candidate.WarehouseID] = true
				continue
			}
			span.RecordError(err)
			if rbErr := a.svc.Rollback(ctx, orderID); rbErr != nil {
				logger.Ctx(ctx).Error().Err(rbErr).Str("order", orderID).Msg("allocation rollback failed")
			}
			return nil, err
		}

		if plans[candidate.WarehouseID] == nil {
			plans[candidate.WarehouseID] = make(map[string]int)
		}
		plans[candidate.WarehouseID][productID] += take

		remaining[productID] -= take
		if remaining[productID] == 0 {
			delete(remaining, productID)
		}
		excluded = make(map[string]bool)
		lastProduct = ""
	}

	result := make([]DeliveryPlan, 0, len(plans))
	for warehouseID, products := range plans {
		result = append(result, DeliveryPlan{WarehouseID: warehouseID, Products: products})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WarehouseID < result[j].WarehouseID })

	span.SetAttributes(attribute.Int("deliveries", len(result)))
	logger.Ctx(ctx).Info().Str("order", orderID).Int("deliveries", len(result)).Msg("delivery list created")
	return result, nil
}

// mostDemanded 返回剩余需求量最大的商品，数量相同时取商品号较小者。
func mostDemanded(remaining map[string]int) string {
	best := ""
	bestQty := 0
	for productID, qty := range remaining {
		if qty > bestQty || (qty == bestQty && (best == "" || productID < best)) {
			best = productID
			bestQty = qty
		}
	}
	return best
}
