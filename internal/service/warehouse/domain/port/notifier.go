package port

import (
	"context"

	"mercato/internal/service/warehouse/domain"
)

// AlarmNotifier 是库存告警通知的出站端口。
// 发送是尽力而为的：失败只记日志，从不影响预占本身。
type AlarmNotifier interface {
	NotifyLowStock(ctx context.Context, warehouse *domain.Warehouse, product domain.WarehouseProduct) error
}

// SnapshotPublisher 是库存快照的出站端口，消费方用它做展示缓存。
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, quantities map[string]int) error
}
