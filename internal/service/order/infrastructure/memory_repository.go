package infrastructure

import (
	"context"
	"sync"

	"mercato/internal/service/order/domain"
)

// MemoryOrderRepository 是测试用的内存实现，
// UpdateStatus 在锁内完成检查和写入，对齐数据库的 find-and-modify 语义。
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *MemoryOrderRepository) UpdateStatus(ctx context.Context, id string, from *domain.Status, to domain.Status) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if from != nil && order.Status != *from {
		return nil, domain.ErrInvalidTransition
	}
	order.Status = to
	copied := *order
	return &copied, nil
}
