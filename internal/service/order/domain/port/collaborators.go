package port

import (
	"context"

	"mercato/internal/service/order/domain"
)

// WalletService 是资金侧的防腐接口。
type WalletService interface {
	// Debit 以订单号为关联号同步扣款。业务拒绝映射为
	// domain.ErrInsufficientFunds / domain.ErrUnknownAccount，
	// 通信失败包装 domain.ErrTransport。
	Debit(ctx context.Context, userID string, amount float64, orderID string) error
}

// WarehouseService 是库存侧的防腐接口。
type WarehouseService interface {
	// CreateDeliveryList 让仓库服务为整单分配库存。
	// 任一商品全网无货映射为 domain.ErrOutOfStock。
	CreateDeliveryList(ctx context.Context, orderID string, cart map[string]int) ([]domain.Delivery, error)
}

// Product 是商品目录里的一条记录。
type Product struct {
	ID    string  `json:"id"`
	Price float64 `json:"price"`
}

// CatalogService 提供价格快照和通知收件人查询，对本服务只读。
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetEmail(ctx context.Context, userID string) (string, error)
	GetAdminEmails(ctx context.Context) ([]string, error)
}
