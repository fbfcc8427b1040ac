package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"mercato/internal/service/order/domain"
	"mercato/internal/service/order/domain/port"
	"mercato/internal/service/order/infrastructure"
)

type fakeWallet struct {
	mu     sync.Mutex
	debits map[string]float64 // orderID -> amount
	err    error
}

func (f *fakeWallet) Debit(_ context.Context, _ string, amount float64, orderID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debits[orderID] = amount
	return nil
}

type fakeWarehouse struct {
	deliveries []domain.Delivery
	err        error
}

func (f *fakeWarehouse) CreateDeliveryList(_ context.Context, _ string, _ map[string]int) ([]domain.Delivery, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.deliveries, nil
}

type fakeCatalog struct {
	prices map[string]float64
}

func (f *fakeCatalog) GetProduct(_ context.Context, productID string) (*port.Product, error) {
	price, ok := f.prices[productID]
	if !ok {
		return nil, domain.ErrUnknownProduct
	}
	return &port.Product{ID: productID, Price: price}, nil
}

func (f *fakeCatalog) GetEmail(_ context.Context, userID string) (string, error) {
	return userID + "@example.com", nil
}

func (f *fakeCatalog) GetAdminEmails(_ context.Context) ([]string, error) {
	return []string{"admin@example.com"}, nil
}

type recordingBus struct {
	mu            sync.Mutex
	intents         []string
	compensations   []string
	notifications   []string // subjects
	intentErr       error
	compensationErr error
}

func (b *recordingBus) PublishIntent(_ context.Context, orderID string) error {
	if b.intentErr != nil {
		return b.intentErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intents = append(b.intents, orderID)
	return nil
}

func (b *recordingBus) PublishCompensation(_ context.Context, orderID string) error {
	if b.compensationErr != nil {
		return b.compensationErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compensations = append(b.compensations, orderID)
	return nil
}

func (b *recordingBus) PublishNotification(_ context.Context, _ []string, subject, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, subject)
	return nil
}

// memoryGuard 模拟 SETNX：每个订单号只放行第一次。
type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memoryGuard) FirstRun(_ context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[orderID] {
		return false, nil
	}
	g.seen[orderID] = true
	return true, nil
}

func (g *memoryGuard) Forget(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, orderID)
	return nil
}

type testRig struct {
	svc       *OrderService
	repo      *infrastructure.MemoryOrderRepository
	wallet    *fakeWallet
	warehouse *fakeWarehouse
	bus       *recordingBus
}

func newTestRig() *testRig {
	repo := infrastructure.NewMemoryOrderRepository()
	wallet := &fakeWallet{debits: make(map[string]float64)}
	warehouse := &fakeWarehouse{deliveries: []domain.Delivery{
		{WarehouseID: "wh-a", Products: map[string]int{"p1": 2}},
	}}
	catalog := &fakeCatalog{prices: map[string]float64{"p1": 10, "p2": 2.5}}
	bus := &recordingBus{}
	guard := &memoryGuard{seen: make(map[string]bool)}
	svc := NewOrderService(repo, otel.Tracer("test"), wallet, warehouse, catalog, bus, bus, bus, guard)
	return &testRig{svc: svc, repo: repo, wallet: wallet, warehouse: warehouse, bus: bus}
}

func TestPlaceOrder(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	summary, err := rig.svc.PlaceOrder(ctx, PlaceOrderRequest{
		BuyerID:         "user-1",
		Cart:            map[string]int{"p1": 2, "p2": 4},
		ShippingAddress: "somewhere",
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if summary.Status != domain.StatusIssued {
		t.Errorf("status = %s, want ISSUED", summary.Status)
	}
	if summary.TotalPrice != 30 { // 2*10 + 4*2.5
		t.Errorf("total price = %v, want 30", summary.TotalPrice)
	}
	if got := rig.wallet.debits[summary.OrderID]; got != 30 {
		t.Errorf("debited = %v, want 30", got)
	}
	if len(rig.bus.intents) != 1 || rig.bus.intents[0] != summary.OrderID {
		t.Errorf("intents = %v, want exactly the placed order", rig.bus.intents)
	}

	order, err := rig.repo.FindByID(ctx, summary.OrderID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.Status != domain.StatusIssued {
		t.Errorf("persisted status = %s, want ISSUED", order.Status)
	}
}

func TestPlaceOrderRejectsUnknownProduct(t *testing.T) {
	rig := newTestRig()
	_, err := rig.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "user-1",
		Cart:    map[string]int{"ghost": 1},
	})
	if !errors.Is(err, domain.ErrUnknownProduct) {
		t.Fatalf("PlaceOrder() error = %v, want ErrUnknownProduct", err)
	}
	if len(rig.bus.intents) != 0 {
		t.Errorf("intent published before pricing succeeded: %v", rig.bus.intents)
	}
}

func TestPlaceOrderAbortsOnDebitFailure(t *testing.T) {
	rig := newTestRig()
	rig.wallet.err = domain.ErrInsufficientFunds

	_, err := rig.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "user-1",
		Cart:    map[string]int{"p1": 1},
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("PlaceOrder() error = %v, want ErrInsufficientFunds", err)
	}
	// 意图已发出；没有订单落库
	if len(rig.bus.intents) != 1 {
		t.Errorf("intents = %v, want 1", rig.bus.intents)
	}
}

// 扣款成功但分配失败：订单不落库，延迟校验发现缺失后广播补偿。
func TestVerifyConsistencyCompensatesHalfDoneSaga(t *testing.T) {
	rig := newTestRig()
	rig.warehouse.err = domain.ErrOutOfStock
	ctx := context.Background()

	_, err := rig.svc.PlaceOrder(ctx, PlaceOrderRequest{
		BuyerID: "user-1",
		Cart:    map[string]int{"p1": 1},
	})
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("PlaceOrder() error = %v, want ErrOutOfStock", err)
	}

	orderID := rig.bus.intents[0]
	if err := rig.svc.VerifyConsistency(ctx, orderID); err != nil {
		t.Fatalf("VerifyConsistency() error = %v", err)
	}
	if len(rig.bus.compensations) != 1 || rig.bus.compensations[0] != orderID {
		t.Errorf("compensations = %v, want [%s]", rig.bus.compensations, orderID)
	}
}

func TestVerifyConsistencyConfirmsCompletedSaga(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	summary, err := rig.svc.PlaceOrder(ctx, PlaceOrderRequest{
		BuyerID: "user-1",
		Cart:    map[string]int{"p1": 1},
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if err := rig.svc.VerifyConsistency(ctx, summary.OrderID); err != nil {
		t.Fatalf("VerifyConsistency() error = %v", err)
	}
	if len(rig.bus.compensations) != 0 {
		t.Errorf("compensations = %v, want none", rig.bus.compensations)
	}
	if len(rig.bus.notifications) != 1 {
		t.Errorf("notifications = %v, want 1 confirmation", rig.bus.notifications)
	}
}

// 意图消息 at-least-once，重复校验只生效一次。
func TestVerifyConsistencyDeduplicatesIntents(t *testing.T) {
	rig := newTestRig()
	rig.warehouse.err = domain.ErrOutOfStock
	ctx := context.Background()

	rig.svc.PlaceOrder(ctx, PlaceOrderRequest{BuyerID: "user-1", Cart: map[string]int{"p1": 1}})
	orderID := rig.bus.intents[0]

	for i := 0; i < 3; i++ {
		if err := rig.svc.VerifyConsistency(ctx, orderID); err != nil {
			t.Fatalf("VerifyConsistency() attempt %d error = %v", i+1, err)
		}
	}
	if len(rig.bus.compensations) != 1 {
		t.Errorf("compensations = %v, want exactly 1", rig.bus.compensations)
	}
}

// 首次校验时总线抖动：闸门必须释放名额，让重新投递的意图
// 再次触发补偿，而不是被去重吞掉。
func TestVerifyConsistencyRetriesAfterPublishFailure(t *testing.T) {
	rig := newTestRig()
	rig.warehouse.err = domain.ErrOutOfStock
	ctx := context.Background()

	rig.svc.PlaceOrder(ctx, PlaceOrderRequest{BuyerID: "user-1", Cart: map[string]int{"p1": 1}})
	orderID := rig.bus.intents[0]

	rig.bus.compensationErr = errors.New("kafka down")
	if err := rig.svc.VerifyConsistency(ctx, orderID); err == nil {
		t.Fatal("VerifyConsistency() = nil, want error while publish fails")
	}
	if len(rig.bus.compensations) != 0 {
		t.Fatalf("compensations = %v, want none yet", rig.bus.compensations)
	}

	// 总线恢复，意图重新投递
	rig.bus.compensationErr = nil
	if err := rig.svc.VerifyConsistency(ctx, orderID); err != nil {
		t.Fatalf("VerifyConsistency() retry error = %v", err)
	}
	if len(rig.bus.compensations) != 1 || rig.bus.compensations[0] != orderID {
		t.Errorf("compensations = %v, want [%s]", rig.bus.compensations, orderID)
	}
}

// 状态已落库后补偿发布失败：迁移本身不回滚，错误记账后放行。
func TestChangeStatusSurvivesCompensationPublishFailure(t *testing.T) {
	rig := newTestRig()
	orderID := placeTestOrder(t, rig, "user-1")

	rig.bus.compensationErr = errors.New("kafka down")
	admin := domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	updated, err := rig.svc.ChangeStatus(context.Background(), admin, orderID, domain.StatusCancelled)
	if err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	if updated.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", updated.Status)
	}
}

func placeTestOrder(t *testing.T, rig *testRig, buyer string) string {
	t.Helper()
	summary, err := rig.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: buyer,
		Cart:    map[string]int{"p1": 1},
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	return summary.OrderID
}

func TestChangeStatusAuthorization(t *testing.T) {
	customer := domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}
	stranger := domain.Actor{UserID: "user-2", Role: domain.RoleCustomer}
	admin := domain.Actor{UserID: "boss", Role: domain.RoleAdmin}

	tests := []struct {
		name    string
		actor   domain.Actor
		next    domain.Status
		wantErr error
	}{
		{name: "buyer cancels own order", actor: customer, next: domain.StatusCancelled},
		{name: "stranger cannot cancel", actor: stranger, next: domain.StatusCancelled, wantErr: domain.ErrUnauthorized},
		{name: "buyer cannot fulfil", actor: customer, next: domain.StatusFulfilled, wantErr: domain.ErrUnauthorized},
		{name: "buyer cannot fail", actor: customer, next: domain.StatusFailed, wantErr: domain.ErrUnauthorized},
		{name: "admin fulfils", actor: admin, next: domain.StatusFulfilled},
		{name: "admin fails order", actor: admin, next: domain.StatusFailed},
		{name: "unknown status", actor: admin, next: domain.Status("LOST"), wantErr: domain.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig()
			orderID := placeTestOrder(t, rig, "user-1")

			updated, err := rig.svc.ChangeStatus(context.Background(), tt.actor, orderID, tt.next)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ChangeStatus() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if updated.Status != tt.next {
				t.Errorf("status = %s, want %s", updated.Status, tt.next)
			}

			wantCompensations := 0
			if tt.next.Compensating() {
				wantCompensations = 1
			}
			if len(rig.bus.compensations) != wantCompensations {
				t.Errorf("compensations = %v, want %d", rig.bus.compensations, wantCompensations)
			}
		})
	}
}

// 顾客的取消是条件迁移：订单已离开 ISSUED 后不再允许。
func TestCustomerCancelOnlyFromIssued(t *testing.T) {
	rig := newTestRig()
	customer := domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}
	admin := domain.Actor{UserID: "boss", Role: domain.RoleAdmin}
	ctx := context.Background()

	orderID := placeTestOrder(t, rig, "user-1")
	if _, err := rig.svc.ChangeStatus(ctx, admin, orderID, domain.StatusFulfilled); err != nil {
		t.Fatalf("admin ChangeStatus() error = %v", err)
	}

	_, err := rig.svc.ChangeStatus(ctx, customer, orderID, domain.StatusCancelled)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("ChangeStatus() after fulfilment error = %v, want ErrUnauthorized", err)
	}
}

func TestGetEnforcesVisibility(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()
	orderID := placeTestOrder(t, rig, "user-1")

	if _, err := rig.svc.Get(ctx, domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}, orderID); err != nil {
		t.Errorf("buyer Get() error = %v", err)
	}
	if _, err := rig.svc.Get(ctx, domain.Actor{UserID: "boss", Role: domain.RoleAdmin}, orderID); err != nil {
		t.Errorf("admin Get() error = %v", err)
	}
	if _, err := rig.svc.Get(ctx, domain.Actor{UserID: "user-2", Role: domain.RoleCustomer}, orderID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("stranger Get() error = %v, want ErrUnauthorized", err)
	}
}
