package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercato/internal/service/warehouse/domain"
)

// MemoryWarehouseRepository 是测试用的内存实现，
// 用一把锁模拟数据库单语句条件更新的原子性。
type MemoryWarehouseRepository struct {
	mu         sync.Mutex
	warehouses map[string]*domain.Warehouse
}

func NewMemoryWarehouseRepository() *MemoryWarehouseRepository {
	return &MemoryWarehouseRepository{warehouses: make(map[string]*domain.Warehouse)}
}

// Seed 预置一个仓库。仅供测试初始化使用。
func (r *MemoryWarehouseRepository) Seed(warehouse *domain.Warehouse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warehouses[warehouse.ID] = warehouse
}

func (r *MemoryWarehouseRepository) FindByID(ctx context.Context, warehouseID string) (*domain.Warehouse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	warehouse, ok := r.warehouses[warehouseID]
	if !ok {
		return nil, domain.ErrWarehouseNotFound
	}
	return cloneWarehouse(warehouse), nil
}

func (r *MemoryWarehouseRepository) IDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.warehouses))
	for id := range r.warehouses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryWarehouseRepository) AdjustQuantity(ctx context.Context, warehouseID string, tx domain.WarehouseTransaction) (*domain.WarehouseProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	warehouse, ok := r.warehouses[warehouseID]
	if !ok {
		return nil, domain.ErrWarehouseNotFound
	}
	product := warehouse.Product(tx.ProductID)
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	if product.Quantity+tx.Quantity < 0 {
		return nil, domain.ErrInsufficientStock
	}

	product.Quantity += tx.Quantity
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	warehouse.Transactions = append(warehouse.Transactions, tx)

	copied := *product
	return &copied, nil
}

func (r *MemoryWarehouseRepository) StockLevels(ctx context.Context, productID string) ([]domain.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var levels []domain.StockLevel
	for id, warehouse := range r.warehouses {
		if product := warehouse.Product(productID); product != nil && product.Quantity > 0 {
			levels = append(levels, domain.StockLevel{WarehouseID: id, Quantity: product.Quantity})
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Quantity != levels[j].Quantity {
			return levels[i].Quantity > levels[j].Quantity
		}
		return levels[i].WarehouseID < levels[j].WarehouseID
	})
	return levels, nil
}

func (r *MemoryWarehouseRepository) WarehousesByOrder(ctx context.Context, orderID string) ([]*domain.Warehouse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*domain.Warehouse
	ids := make([]string, 0, len(r.warehouses))
	for id := range r.warehouses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		warehouse := r.warehouses[id]
		for _, tx := range warehouse.Transactions {
			if tx.OrderID != nil && *tx.OrderID == orderID {
				result = append(result, cloneWarehouse(warehouse))
				break
			}
		}
	}
	return result, nil
}

func (r *MemoryWarehouseRepository) AddProduct(ctx context.Context, warehouseID string, product domain.WarehouseProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	warehouse, ok := r.warehouses[warehouseID]
	if !ok {
		return domain.ErrWarehouseNotFound
	}
	if warehouse.Product(product.ProductID) != nil {
		return domain.ErrProductExists
	}
	warehouse.Inventory = append(warehouse.Inventory, product)
	warehouse.Transactions = append(warehouse.Transactions, domain.WarehouseTransaction{
		ProductID: product.ProductID,
		Quantity:  product.Quantity,
		Status:    domain.StatusAdminEdit,
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *MemoryWarehouseRepository) SetAlarmThreshold(ctx context.Context, warehouseID, productID string, threshold int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	warehouse, ok := r.warehouses[warehouseID]
	if !ok {
		return domain.ErrWarehouseNotFound
	}
	product := warehouse.Product(productID)
	if product == nil {
		return domain.ErrProductNotFound
	}
	product.AlarmThreshold = threshold
	return nil
}

func cloneWarehouse(w *domain.Warehouse) *domain.Warehouse {
	copied := &domain.Warehouse{
		ID:          w.ID,
		Name:        w.Name,
		AdminEmails: append([]string(nil), w.AdminEmails...),
	}
	copied.Inventory = append(copied.Inventory, w.Inventory...)
	copied.Transactions = append(copied.Transactions, w.Transactions...)
	return copied
}
