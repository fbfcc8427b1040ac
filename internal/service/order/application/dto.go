package application

import "mercato/internal/service/order/domain"

// PlaceOrderRequest 是下单用例的输入。
type PlaceOrderRequest struct {
	BuyerID         string         `json:"buyerId"`
	Cart            map[string]int `json:"cart"` // productId -> quantity
	ShippingAddress string         `json:"shippingAddress"`
}

// OrderSummary 是返回给调用方的订单摘要。
type OrderSummary struct {
	OrderID    string            `json:"orderId"`
	Status     domain.Status     `json:"status"`
	TotalPrice float64           `json:"totalPrice"`
	Deliveries []domain.Delivery `json:"deliveries"`
}

func toSummary(order *domain.Order) *OrderSummary {
	return &OrderSummary{
		OrderID:    order.ID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice(),
		Deliveries: order.Deliveries,
	}
}
