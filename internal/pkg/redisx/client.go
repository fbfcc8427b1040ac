package redisx

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 封装 go-redis：一致性校验的幂等闸门和库存快照缓存。
type Client struct {
	rdb *redis.Client
}

func NewClient(addr string) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Once 对 key 做 SETNX。返回 true 表示本次调用抢到了执行权。
// 总线是 at-least-once 投递，同一订单意图可能被重复消费；
// 校验逻辑本身幂等，这个闸门只是避免重复跑校验和重复发通知。
func (c *Client) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, 1, ttl).Result()
}

// Forget 删除 Once 占下的 key，让下一次 Once 重新返回 true。
func (c *Client) Forget(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// ReplaceHash 用 fields 原子地重建一个 hash：旧键删除后整体写入。
func (c *Client) ReplaceHash(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HashInt 读取 hash 的一个整数字段，第二个返回值报告字段是否存在。
func (c *Client) HashInt(ctx context.Context, key, field string) (int, bool, error) {
	val, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
