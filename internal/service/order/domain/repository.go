package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，由基础设施层实现。
type OrderRepository interface {
	// Save 持久化一个新订单。
	Save(ctx context.Context, order *Order) error

	// FindByID 根据 ID 查找订单，不存在返回 ErrOrderNotFound。
	FindByID(ctx context.Context, id string) (*Order, error)

	// UpdateStatus 把订单状态从 from 迁移到 to。from 为 nil 表示
	// 无条件覆盖（管理员路径）。返回迁移后的订单；守卫未命中返回
	// ErrInvalidTransition，订单不存在返回 ErrOrderNotFound。
	// 迁移必须是单语句的 find-and-modify，这是状态变更与
	// 延迟校验并发竞争时"先到先赢"的保证。
	UpdateStatus(ctx context.Context, id string, from *Status, to Status) (*Order, error)
}
