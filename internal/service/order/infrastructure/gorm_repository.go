package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"mercato/internal/service/order/domain"
)

// OrderModel 是订单的存储模型。购物车和发货单持久化后不再修改，
// 存成 JSON 列即可，状态列才是唯一的可变部分。
type OrderModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	BuyerID         string    `gorm:"column:buyer_id;index"`
	Cart            string    `gorm:"column:cart;type:text"`
	Deliveries      string    `gorm:"column:deliveries;type:text"`
	ShippingAddress string    `gorm:"column:shipping_address"`
	Status          string    `gorm:"column:status"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (OrderModel) TableName() string { return "orders" }

// GormOrderRepository 是 OrderRepository 的 MySQL 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&OrderModel{}); err != nil {
		return nil, errors.Wrap(err, "order schema migration")
	}
	return &GormOrderRepository{db: db}, nil
}

func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	model, err := toModel(order)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomain(&model)
}

// UpdateStatus 是单语句的 find-and-modify：WHERE 带上期望的当前状态，
// 并发竞争时只有先到的写生效。
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id string, from *domain.Status, to domain.Status) (*domain.Order, error) {
	update := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", id)
	if from != nil {
		update = update.Where("status = ?", string(*from))
	}
	res := update.Update("status", string(to))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.ErrInvalidTransition
	}
	return r.FindByID(ctx, id)
}

func toModel(order *domain.Order) (*OrderModel, error) {
	cart, err := json.Marshal(order.Cart)
	if err != nil {
		return nil, errors.Wrap(err, "marshal cart")
	}
	deliveries, err := json.Marshal(order.Deliveries)
	if err != nil {
		return nil, errors.Wrap(err, "marshal deliveries")
	}
	return &OrderModel{
		ID:              order.ID,
		BuyerID:         order.BuyerID,
		Cart:            string(cart),
		Deliveries:      string(deliveries),
		ShippingAddress: order.ShippingAddress,
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt,
	}, nil
}

func toDomain(model *OrderModel) (*domain.Order, error) {
	order := &domain.Order{
		ID:              model.ID,
		BuyerID:         model.BuyerID,
		ShippingAddress: model.ShippingAddress,
		Status:          domain.Status(model.Status),
		CreatedAt:       model.CreatedAt,
	}
	if err := json.Unmarshal([]byte(model.Cart), &order.Cart); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart")
	}
	if err := json.Unmarshal([]byte(model.Deliveries), &order.Deliveries); err != nil {
		return nil, errors.Wrap(err, "unmarshal deliveries")
	}
	return order, nil
}
