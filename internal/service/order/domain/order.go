package domain

import (
	"errors"
	"time"
)

// Status 是订单状态。ISSUED 为初始态，其余均为终态。
type Status string

const (
	StatusIssued    Status = "ISSUED"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Valid 检查是否为已知状态。
func (s Status) Valid() bool {
	switch s {
	case StatusIssued, StatusFulfilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Compensating 报告进入该状态是否要求冲正资金和库存。
func (s Status) Compensating() bool {
	return s == StatusCancelled || s == StatusFailed
}

// Role 是发起状态变更的角色。
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// Actor 是发起请求的用户。
type Actor struct {
	UserID string
	Role   Role
}

// 业务拒绝类错误：同步返回给调用方，永不重试。
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor not authorized for this order operation")
	ErrEmptyCart         = errors.New("empty cart")
	ErrInvalidQuantity   = errors.New("non-positive quantity")
)

// ErrTransport 标记下游通信故障。调用方收到它时本次请求已失败，
// 恢复交给延迟校验与补偿，不做本地重试。
var ErrTransport = errors.New("downstream transport fault")

// IsBusinessRejection 报告 err 是否属于业务拒绝，
// 即带着明确业务含义、重试也不会变好的那一类。
func IsBusinessRejection(err error) bool {
	for _, sentinel := range []error{
		ErrOrderNotFound, ErrUnknownProduct, ErrUnknownAccount,
		ErrInsufficientFunds, ErrOutOfStock, ErrInvalidTransition, ErrUnauthorized,
		ErrEmptyCart, ErrInvalidQuantity,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// CartLine 是下单时的购物车行，单价是下单瞬间的快照。
type CartLine struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Delivery 是单个仓库承担的发货部分。
type Delivery struct {
	WarehouseID string         `json:"warehouseId"`
	Products    map[string]int `json:"products"`
}

// Order 是订单聚合根。记录一旦持久化，购物车和发货单便不可变，
// 此后唯一允许的修改是状态迁移。订单记录的存在本身就是
// 这笔事务"已提交"的持久化标记。
type Order struct {
	ID              string
	BuyerID         string
	Cart            []CartLine
	Deliveries      []Delivery
	ShippingAddress string
	Status          Status
	CreatedAt       time.Time
}

// TotalPrice 按快照单价计算整单金额。
func (o *Order) TotalPrice() float64 {
	total := 0.0
	for _, line := range o.Cart {
		total += line.UnitPrice * float64(line.Quantity)
	}
	return total
}

// CanChangeStatus 判断 actor 是否有权把订单迁移到 next。
// 管理员可以对任何订单设置任何状态；
// 顾客只能把自己的 ISSUED 订单改为 CANCELLED。
func (o *Order) CanChangeStatus(actor Actor, next Status) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.UserID == o.BuyerID && o.Status == StatusIssued && next == StatusCancelled
}

// CanView 判断 actor 是否有权读取订单。
func (o *Order) CanView(actor Actor) bool {
	return actor.Role == RoleAdmin || actor.UserID == o.BuyerID
}
