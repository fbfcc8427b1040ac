package infrastructure

import (
	"context"
	"time"

	"mercato/internal/pkg/redisx"
)

const (
	stockHashKey  = "catalog:stock"
	stockCacheTTL = time.Hour
)

// RedisStockCache 缓存最近一次库存快照。快照只用于展示，
// 过期后宁可不显示也不显示陈旧数据。
type RedisStockCache struct {
	client *redisx.Client
}

func NewRedisStockCache(client *redisx.Client) *RedisStockCache {
	return &RedisStockCache{client: client}
}

func (c *RedisStockCache) StoreSnapshot(ctx context.Context, totals map[string]int) error {
	fields := make(map[string]interface{}, len(totals))
	for productID, qty := range totals {
		fields[productID] = qty
	}
	return c.client.ReplaceHash(ctx, stockHashKey, fields, stockCacheTTL)
}

func (c *RedisStockCache) Quantity(ctx context.Context, productID string) (int, bool, error) {
	return c.client.HashInt(ctx, stockHashKey, productID)
}
