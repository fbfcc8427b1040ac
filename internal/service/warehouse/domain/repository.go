package domain

import "context"

// StockLevel 是仓库选择查询的结果行。
type StockLevel struct {
	WarehouseID string
	Quantity    int
}

// WarehouseRepository 定义仓库聚合的持久化接口。
type WarehouseRepository interface {
	FindByID(ctx context.Context, warehouseID string) (*Warehouse, error)

	// IDs 返回全部仓库号，供快照聚合逐个加载，避免一次性读全量。
	IDs(ctx context.Context) ([]string, error)

	// AdjustQuantity 是库存侧唯一的写入口：
	// 原子地把 delta 加到 (warehouseID, productID) 的数量上并追加流水。
	// 负增量是条件更新（数量不足返回 ErrInsufficientStock），
	// 正增量无条件生效。返回更新后的库存行。
	AdjustQuantity(ctx context.Context, warehouseID string, tx WarehouseTransaction) (*WarehouseProduct, error)

	// StockLevels 返回持有 productID 的仓库及其数量，按数量降序、
	// 仓库号升序排列；没有库存的仓库不出现。
	StockLevels(ctx context.Context, productID string) ([]StockLevel, error)

	// WarehousesByOrder 返回流水中出现过 orderID 的所有仓库。
	WarehousesByOrder(ctx context.Context, orderID string) ([]*Warehouse, error)

	// AddProduct 向仓库新增商品行（含一条管理员流水）。
	// 商品已存在返回 ErrProductExists。
	AddProduct(ctx context.Context, warehouseID string, product WarehouseProduct) error

	// SetAlarmThreshold 更新告警阈值。
	SetAlarmThreshold(ctx context.Context, warehouseID, productID string, threshold int) error
}
