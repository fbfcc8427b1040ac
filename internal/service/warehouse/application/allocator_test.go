package application

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"mercato/internal/service/warehouse/domain"
	"mercato/internal/service/warehouse/infrastructure"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alarms []string
}

func (n *recordingNotifier) NotifyLowStock(_ context.Context, warehouse *domain.Warehouse, product domain.WarehouseProduct) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alarms = append(n.alarms, warehouse.ID+"/"+product.ProductID)
	return nil
}

func newTestAllocator(warehouses ...*domain.Warehouse) (*Allocator, *WarehouseService, *infrastructure.MemoryWarehouseRepository) {
	repo := infrastructure.NewMemoryWarehouseRepository()
	for _, w := range warehouses {
		repo.Seed(w)
	}
	svc := NewWarehouseService(repo, &recordingNotifier{}, otel.Tracer("test"))
	return NewAllocator(repo, svc, otel.Tracer("test")), svc, repo
}

func warehouseWith(id string, products ...domain.WarehouseProduct) *domain.Warehouse {
	return &domain.Warehouse{ID: id, Name: id, Inventory: products}
}

func TestCreateDeliveryListPrefersLargestStock(t *testing.T) {
	allocator, _, repo := newTestAllocator(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 5}),
		warehouseWith("wh-b", domain.WarehouseProduct{ProductID: "p1", Quantity: 3}),
		warehouseWith("wh-c", domain.WarehouseProduct{ProductID: "p1", Quantity: 0}),
	)

	plans, err := allocator.CreateDeliveryList(context.Background(), "order-1", map[string]int{"p1": 7})
	if err != nil {
		t.Fatalf("CreateDeliveryList() error = %v", err)
	}

	want := []DeliveryPlan{
		{WarehouseID: "wh-a", Products: map[string]int{"p1": 5}},
		{WarehouseID: "wh-b", Products: map[string]int{"p1": 2}},
	}
	if !reflect.DeepEqual(plans, want) {
		t.Errorf("CreateDeliveryList() = %+v, want %+v", plans, want)
	}

	levels, _ := repo.StockLevels(context.Background(), "p1")
	if len(levels) != 1 || levels[0].WarehouseID != "wh-b" || levels[0].Quantity != 1 {
		t.Errorf("remaining stock = %+v, want only wh-b with 1", levels)
	}
}

func TestCreateDeliveryListAggregatesPerWarehouse(t *testing.T) {
	allocator, _, _ := newTestAllocator(
		warehouseWith("wh-a",
			domain.WarehouseProduct{ProductID: "p1", Quantity: 10},
			domain.WarehouseProduct{ProductID: "p2", Quantity: 10},
		),
	)

	plans, err := allocator.CreateDeliveryList(context.Background(), "order-1", map[string]int{"p1": 4, "p2": 6})
	if err != nil {
		t.Fatalf("CreateDeliveryList() error = %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected a single delivery, got %d", len(plans))
	}
	if !reflect.DeepEqual(plans[0].Products, map[string]int{"p1": 4, "p2": 6}) {
		t.Errorf("delivery products = %+v", plans[0].Products)
	}
}

// 任一商品全网无货时整单失败，此前预占的库存必须全部回补。
func TestCreateDeliveryListRollsBackOnImpossibleOrder(t *testing.T) {
	allocator, _, repo := newTestAllocator(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 5}),
	)

	_, err := allocator.CreateDeliveryList(context.Background(), "order-1", map[string]int{"p1": 5, "p2": 1})
	if !errors.Is(err, domain.ErrNoStockAnywhere) {
		t.Fatalf("CreateDeliveryList() error = %v, want ErrNoStockAnywhere", err)
	}

	warehouse, _ := repo.FindByID(context.Background(), "wh-a")
	if qty := warehouse.Product("p1").Quantity; qty != 5 {
		t.Errorf("p1 quantity after rollback = %d, want 5", qty)
	}
	if len(warehouse.OutstandingByOrder("order-1")) != 0 {
		t.Errorf("order-1 still has outstanding reservations: %v", warehouse.OutstandingByOrder("order-1"))
	}
}

// 并发下单只允许库存够的那些成功，总预占量永不超过总库存。
func TestConcurrentAllocationsNeverOversell(t *testing.T) {
	allocator, _, repo := newTestAllocator(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 10}),
		warehouseWith("wh-b", domain.WarehouseProduct{ProductID: "p1", Quantity: 5}),
	)

	const orders = 20
	var wg sync.WaitGroup
	succeeded := make(chan int, orders)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := "order-" + string(rune('a'+n))
			if _, err := allocator.CreateDeliveryList(context.Background(), orderID, map[string]int{"p1": 1}); err == nil {
				succeeded <- 1
			}
		}(i)
	}
	wg.Wait()
	close(succeeded)

	total := 0
	for range succeeded {
		total++
	}
	if total != 15 {
		t.Errorf("successful allocations = %d, want 15", total)
	}

	levels, _ := repo.StockLevels(context.Background(), "p1")
	for _, level := range levels {
		if level.Quantity < 0 {
			t.Errorf("warehouse %s oversold: %d", level.WarehouseID, level.Quantity)
		}
	}
}
