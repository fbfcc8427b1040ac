package domain

import (
	"errors"
	"time"
)

// TransactionStatus 标记一条库存流水的来源。
type TransactionStatus string

const (
	// StatusConfirmed 订单预占的出库
	StatusConfirmed TransactionStatus = "CONFIRMED"
	// StatusRollback 补偿产生的回库
	StatusRollback TransactionStatus = "ROLLBACK"
	// StatusAdminEdit 管理员手工调整，不关联订单
	StatusAdminEdit TransactionStatus = "ADMIN_EDIT"
)

var (
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrProductNotFound   = errors.New("product not found in warehouse")
	ErrProductExists     = errors.New("product already present in warehouse")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNoStockAnywhere 表示没有任何仓库持有该商品，整单分配失败
	ErrNoStockAnywhere = errors.New("no warehouse holds stock of product")
)

// WarehouseProduct 是某仓库内单个商品的库存行。
// Quantity 恒等于该商品在此仓库全部流水增量之和。
type WarehouseProduct struct {
	ProductID      string
	Quantity       int
	AlarmThreshold int
}

// WarehouseTransaction 是库存流水。OrderID 为 nil 表示管理员调整。
type WarehouseTransaction struct {
	OrderID   *string
	ProductID string
	Quantity  int // 有符号增量，出库为负
	Status    TransactionStatus
	CreatedAt time.Time
}

// Warehouse 是仓库聚合根。
type Warehouse struct {
	ID           string
	Name         string
	Inventory    []WarehouseProduct
	Transactions []WarehouseTransaction
	AdminEmails  []string
}

// Product 按商品号查找库存行。
func (w *Warehouse) Product(productID string) *WarehouseProduct {
	for i := range w.Inventory {
		if w.Inventory[i].ProductID == productID {
			return &w.Inventory[i]
		}
	}
	return nil
}

// OutstandingByOrder 计算订单在此仓库每个商品上尚未被冲正的净出库量。
// 预占记负增量、回库记正增量，二者之和为零说明已经补偿完毕——
// 这正是补偿消息可以安全重放的原因。
func (w *Warehouse) OutstandingByOrder(orderID string) map[string]int {
	net := make(map[string]int)
	for _, tx := range w.Transactions {
		if tx.OrderID != nil && *tx.OrderID == orderID {
			net[tx.ProductID] += tx.Quantity
		}
	}
	outstanding := make(map[string]int)
	for productID, sum := range net {
		if sum < 0 {
			outstanding[productID] = -sum
		}
	}
	return outstanding
}
