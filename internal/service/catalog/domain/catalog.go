package domain

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Product 是目录中的一条商品记录，价格以它为准。
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// User 是注册用户，Role 与订单侧的角色语义一致。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (*Product, error)
	FindUser(ctx context.Context, userID string) (*User, error)
	AdminEmails(ctx context.Context) ([]string, error)
}

// StockCache 缓存事件总线广播的全网库存快照，只用于展示。
type StockCache interface {
	StoreSnapshot(ctx context.Context, totals map[string]int) error
	Quantity(ctx context.Context, productID string) (int, bool, error)
}
