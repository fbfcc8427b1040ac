package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/logger"
	"mercato/internal/service/order/domain"
	"mercato/internal/service/order/domain/port"
)

var (
	ordersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mercato_orders_placed_total",
		Help: "Order placement attempts by outcome.",
	}, []string{"outcome"})
	compensationsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercato_compensations_published_total",
		Help: "Compensation messages published for inconsistent or cancelled orders.",
	})
	compensationPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercato_compensation_publish_failures_total",
		Help: "Compensation publishes that failed after a terminal status change; alert and replay manually.",
	})
)

// OrderService 编排下单事务：扣款、分配库存、落库，
// 以及事后的延迟一致性校验和补偿触发。
type OrderService struct {
	repo   domain.OrderRepository
	tracer trace.Tracer

	wallet    port.WalletService
	warehouse port.WarehouseService
	catalog   port.CatalogService

	intents       port.IntentPublisher
	compensations port.CompensationPublisher
	notifications port.NotificationPublisher
	guard         port.VerificationGuard
}

func NewOrderService(
	repo domain.OrderRepository,
	tracer trace.Tracer,
	wallet port.WalletService,
	warehouse port.WarehouseService,
	catalog port.CatalogService,
	intents port.IntentPublisher,
	compensations port.CompensationPublisher,
	notifications port.NotificationPublisher,
	guard port.VerificationGuard,
) *OrderService {
	return &OrderService{
		repo: repo, tracer: tracer,
		wallet: wallet, warehouse: warehouse, catalog: catalog,
		intents: intents, compensations: compensations, notifications: notifications,
		guard: guard,
	}
}

// PlaceOrder 执行下单事务的同步阶段。
//
// 失败语义：扣款和分配任何一步失败都立即放弃，不在本地重试，
// 也不在这里补偿——意图事件已经发出，宽限期后的校验会发现
// 订单缺失并广播补偿。调用方只会看到一次明确的失败。
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderSummary, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.String("buyer.id", req.BuyerID))

	if len(req.Cart) == 0 {
		ordersPlaced.WithLabelValues("rejected").Inc()
		return nil, domain.ErrEmptyCart
	}

	// 1. 逐项向商品目录取价格快照
	cart, err := s.snapshotCart(ctx, req.Cart)
	if err != nil {
		span.RecordError(err)
		ordersPlaced.WithLabelValues("rejected").Inc()
		return nil, err
	}

	order := &domain.Order{
		ID:              uuid.NewString(),
		BuyerID:         req.BuyerID,
		Cart:            cart,
		ShippingAddress: req.ShippingAddress,
		Status:          domain.StatusIssued,
		CreatedAt:       time.Now(),
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	// 2. 先发意图再动钱：进程在任何一步崩溃，
	//    延迟校验都能从这条事件找回这张订单
	if err := s.intents.PublishIntent(ctx, order.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent publish failed")
		ordersPlaced.WithLabelValues("transport_fault").Inc()
		return nil, fmt.Errorf("publish order intent: %w", domain.ErrTransport)
	}

	// 3. 同步扣款
	if err := s.wallet.Debit(ctx, req.BuyerID, order.TotalPrice(), order.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("debit failed, aborting placement")
		ordersPlaced.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	// 4. 同步分配库存
	deliveries, err := s.warehouse.CreateDeliveryList(ctx, order.ID, req.Cart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("allocation failed, aborting placement")
		ordersPlaced.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	order.Deliveries = deliveries

	// 5. 落库。订单记录的存在即是"已提交"标记
	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		ordersPlaced.WithLabelValues("persist_fault").Inc()
		return nil, err
	}

	ordersPlaced.WithLabelValues("placed").Inc()
	logger.Ctx(ctx).Info().Str("order", order.ID).Str("buyer", req.BuyerID).
		Float64("total", order.TotalPrice()).Int("deliveries", len(deliveries)).
		Msg("order placed")
	return toSummary(order), nil
}

// VerifyConsistency 是延迟校验入口，在意图事件的宽限期到期后调用。
// 订单缺失说明同步阶段半途而废，广播补偿把钱和货都退回去；
// 订单在库则事务成功，给买家发确认通知。
func (s *OrderService) VerifyConsistency(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.VerifyConsistency")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.repo.FindByID(ctx, orderID)
	if err == nil {
		logger.Ctx(ctx).Info().Str("order", orderID).Msg("order found, saga completed")
		s.notifyBuyer(ctx, order, "confirmed")
		return nil
	}
	if err != domain.ErrOrderNotFound {
		span.RecordError(err)
		return err
	}

	// 意图在、订单不在：典型的不一致，触发补偿。
	// 闸门只挡住补偿发布这一步，且发布失败时释放名额，
	// 否则重新投递的意图会被去重吞掉，补偿就永远丢了。
	first, err := s.guard.FirstRun(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !first {
		span.AddEvent("duplicate intent, compensation already published")
		return nil
	}

	logger.Ctx(ctx).Warn().Str("order", orderID).Msg("order missing after grace period, publishing compensation")
	span.AddEvent("ConsistencyFault")
	if err := s.compensations.PublishCompensation(ctx, orderID); err != nil {
		span.RecordError(err)
		if forgetErr := s.guard.Forget(ctx, orderID); forgetErr != nil {
			logger.Ctx(ctx).Error().Err(forgetErr).Str("order", orderID).Msg("could not release verification guard")
		}
		return err
	}
	compensationsPublished.Inc()
	return nil
}

// Get 返回订单详情，只有买家本人和管理员可见。
func (s *OrderService) Get(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanView(actor) {
		return nil, domain.ErrUnauthorized
	}
	return order, nil
}

// Status 返回订单状态，权限同 Get。
func (s *OrderService) Status(ctx context.Context, actor domain.Actor, orderID string) (domain.Status, error) {
	order, err := s.Get(ctx, actor, orderID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

// ChangeStatus 执行状态迁移。迁移进 CANCELLED/FAILED 会广播补偿。
// 迁移本身是条件化的单语句写，与延迟校验并发时先写者赢，
// 输家多发的那条补偿消息靠幂等性自然归零。
func (s *OrderService) ChangeStatus(ctx context.Context, actor domain.Actor, orderID string, next domain.Status) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ChangeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("status.next", string(next)))

	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, next)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanChangeStatus(actor, next) {
		return nil, domain.ErrUnauthorized
	}

	// 管理员可无条件覆盖；顾客路径要求当前仍是 ISSUED
	var from *domain.Status
	if actor.Role != domain.RoleAdmin {
		issued := domain.StatusIssued
		from = &issued
	}
	updated, err := s.repo.UpdateStatus(ctx, orderID, from, next)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if next.Compensating() {
		if err := s.compensations.PublishCompensation(ctx, orderID); err != nil {
			// 状态已落库但补偿没发出去；计数报警，交给运维重发
			compensationPublishFailures.Inc()
			logger.Ctx(ctx).Error().Err(err).Str("order", orderID).Msg("compensation publish failed after status change")
			span.RecordError(err)
		} else {
			compensationsPublished.Inc()
		}
	}

	logger.Ctx(ctx).Info().Str("order", orderID).Str("status", string(next)).
		Str("actor", actor.UserID).Msg("order status changed")
	s.notifyBuyer(ctx, updated, string(next))
	return updated, nil
}

// snapshotCart 为购物车的每一行取点时价格，商品号排序保证遍历稳定。
func (s *OrderService) snapshotCart(ctx context.Context, cart map[string]int) ([]domain.CartLine, error) {
	productIDs := make([]string, 0, len(cart))
	for productID, qty := range cart {
		if qty <= 0 {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrInvalidQuantity)
		}
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	lines := make([]domain.CartLine, 0, len(productIDs))
	for _, productID := range productIDs {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("price product %s: %w", productID, err)
		}
		lines = append(lines, domain.CartLine{
			ProductID: productID,
			Quantity:  cart[productID],
			UnitPrice: product.Price,
		})
	}
	return lines, nil
}

// notifyBuyer 给买家和管理员发状态通知。通知失败不影响主流程。
func (s *OrderService) notifyBuyer(ctx context.Context, order *domain.Order, event string) {
	var recipients []string
	email, err := s.catalog.GetEmail(ctx, order.BuyerID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("buyer", order.BuyerID).Msg("cannot resolve buyer email")
	} else {
		recipients = append(recipients, email)
	}
	admins, err := s.catalog.GetAdminEmails(ctx)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("cannot resolve admin emails")
	} else {
		recipients = append(recipients, admins...)
	}
	if len(recipients) == 0 {
		return
	}
	subject := fmt.Sprintf("Order %s %s", order.ID, event)
	body := fmt.Sprintf("Order %s is now %s.", order.ID, order.Status)
	if err := s.notifications.PublishNotification(ctx, recipients, subject, body); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("status notification failed")
	}
}

func outcomeLabel(err error) string {
	switch {
	case domain.IsBusinessRejection(err):
		return "rejected"
	default:
		return "transport_fault"
	}
}
