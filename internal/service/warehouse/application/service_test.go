package application

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"mercato/internal/service/warehouse/domain"
	"mercato/internal/service/warehouse/infrastructure"
)

func newTestWarehouseService(warehouses ...*domain.Warehouse) (*WarehouseService, *infrastructure.MemoryWarehouseRepository, *recordingNotifier) {
	repo := infrastructure.NewMemoryWarehouseRepository()
	for _, w := range warehouses {
		repo.Seed(w)
	}
	notifier := &recordingNotifier{}
	return NewWarehouseService(repo, notifier, otel.Tracer("test")), repo, notifier
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name          string
		warehouse     string
		product       string
		qty           int
		wantRemaining int
		wantErr       error
	}{
		{name: "partial take", warehouse: "wh-a", product: "p1", qty: 3, wantRemaining: 7},
		{name: "exact take", warehouse: "wh-a", product: "p1", qty: 10, wantRemaining: 0},
		{name: "insufficient", warehouse: "wh-a", product: "p1", qty: 11, wantErr: domain.ErrInsufficientStock},
		{name: "unknown product", warehouse: "wh-a", product: "p9", qty: 1, wantErr: domain.ErrProductNotFound},
		{name: "unknown warehouse", warehouse: "wh-x", product: "p1", qty: 1, wantErr: domain.ErrWarehouseNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestWarehouseService(
				warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 10}),
			)
			remaining, err := svc.Reserve(context.Background(), tt.warehouse, tt.product, tt.qty, "order-1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reserve() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && remaining != tt.wantRemaining {
				t.Errorf("Reserve() remaining = %d, want %d", remaining, tt.wantRemaining)
			}
		})
	}
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := newTestWarehouseService(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 10}),
	)
	for _, qty := range []int{0, -2} {
		if _, err := svc.Reserve(context.Background(), "wh-a", "p1", qty, "order-1"); err == nil {
			t.Errorf("Reserve(%d) expected error, got nil", qty)
		}
	}
}

// 回滚只冲正净出库量，重放补偿消息不会把库存越补越多。
func TestRollbackIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestWarehouseService(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 10}),
	)
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, "wh-a", "p1", 4, "order-1"); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Rollback(ctx, "order-1"); err != nil {
			t.Fatalf("Rollback() attempt %d error = %v", i+1, err)
		}
	}

	warehouse, _ := repo.FindByID(ctx, "wh-a")
	if qty := warehouse.Product("p1").Quantity; qty != 10 {
		t.Errorf("quantity after replayed rollback = %d, want 10", qty)
	}
}

func TestRollbackUnknownOrderIsNoOp(t *testing.T) {
	svc, _, _ := newTestWarehouseService(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 10}),
	)
	if err := svc.Rollback(context.Background(), "ghost-order"); err != nil {
		t.Errorf("Rollback() of unknown order = %v, want nil", err)
	}
}

// 数量跌破阈值时发告警；刚好等于阈值不算跌破。
func TestAlarmThreshold(t *testing.T) {
	svc, _, notifier := newTestWarehouseService(
		warehouseWith("wh-a",
			domain.WarehouseProduct{ProductID: "p1", Quantity: 10, AlarmThreshold: 8},
			domain.WarehouseProduct{ProductID: "p2", Quantity: 10, AlarmThreshold: 8},
		),
	)
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, "wh-a", "p1", 2, "order-1"); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if len(notifier.alarms) != 0 {
		t.Errorf("alarm fired at threshold boundary: %v", notifier.alarms)
	}

	if _, err := svc.Reserve(ctx, "wh-a", "p2", 3, "order-1"); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if len(notifier.alarms) != 1 || notifier.alarms[0] != "wh-a/p2" {
		t.Errorf("alarms = %v, want [wh-a/p2]", notifier.alarms)
	}
}

func TestEditProductCreatesWhenMissing(t *testing.T) {
	svc, repo, _ := newTestWarehouseService(warehouseWith("wh-a"))
	ctx := context.Background()

	err := svc.EditProduct(ctx, "wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 7, AlarmThreshold: 2})
	if err != nil {
		t.Fatalf("EditProduct() error = %v", err)
	}
	warehouse, _ := repo.FindByID(ctx, "wh-a")
	if qty := warehouse.Product("p1").Quantity; qty != 7 {
		t.Errorf("created product quantity = %d, want 7", qty)
	}

	// 已存在时按有符号增量调整
	if err := svc.EditProduct(ctx, "wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: -3}); err != nil {
		t.Fatalf("EditProduct() adjust error = %v", err)
	}
	warehouse, _ = repo.FindByID(ctx, "wh-a")
	if qty := warehouse.Product("p1").Quantity; qty != 4 {
		t.Errorf("adjusted product quantity = %d, want 4", qty)
	}
}

func TestEditProductRejectsNegativeCreation(t *testing.T) {
	svc, _, _ := newTestWarehouseService(warehouseWith("wh-a"))
	err := svc.EditProduct(context.Background(), "wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: -1})
	if err == nil {
		t.Error("EditProduct() with negative initial quantity expected error, got nil")
	}
}

func TestEditAlarm(t *testing.T) {
	svc, repo, _ := newTestWarehouseService(
		warehouseWith("wh-a", domain.WarehouseProduct{ProductID: "p1", Quantity: 10}),
	)
	ctx := context.Background()

	if err := svc.EditAlarm(ctx, "wh-a", "p1", 4); err != nil {
		t.Fatalf("EditAlarm() error = %v", err)
	}
	warehouse, _ := repo.FindByID(ctx, "wh-a")
	if got := warehouse.Product("p1").AlarmThreshold; got != 4 {
		t.Errorf("threshold = %d, want 4", got)
	}

	if err := svc.EditAlarm(ctx, "wh-a", "p1", -1); err == nil {
		t.Error("EditAlarm() with negative threshold expected error, got nil")
	}
	if err := svc.EditAlarm(ctx, "wh-a", "p9", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("EditAlarm() unknown product error = %v, want ErrProductNotFound", err)
	}
}
