package infrastructure

import (
	"context"
	"time"

	"mercato/internal/pkg/redisx"
)

const verificationGuardTTL = 24 * time.Hour

// RedisVerificationGuard 用 SETNX 为每张订单的一致性校验去重。
// 意图消息可能重复投递，只有第一个拿到键的消费者执行校验。
type RedisVerificationGuard struct {
	client *redisx.Client
}

func NewRedisVerificationGuard(client *redisx.Client) *RedisVerificationGuard {
	return &RedisVerificationGuard{client: client}
}

func (g *RedisVerificationGuard) FirstRun(ctx context.Context, orderID string) (bool, error) {
	return g.client.Once(ctx, "order:verify:"+orderID, verificationGuardTTL)
}

// Forget 释放名额，校验在占号后失败时回滚用。
func (g *RedisVerificationGuard) Forget(ctx context.Context, orderID string) error {
	return g.client.Forget(ctx, "order:verify:"+orderID)
}
