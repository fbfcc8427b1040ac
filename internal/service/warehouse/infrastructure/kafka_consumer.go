package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
)

// Rollbacker 把一张订单预占的全部库存放回去。
type Rollbacker interface {
	Rollback(ctx context.Context, orderID string) error
}

// CompensationConsumer 监听 compensate 主题，把订单预占的库存放回去。
// Rollback 基于净出库量计算，重复投递不会多回滚。
// 回滚失败不提交 offset，就地退避重试，重启后从已提交位点重放。
type CompensationConsumer struct {
	reader     mq.MessageSource
	svc        Rollbacker
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewCompensationConsumer(reader mq.MessageSource, svc Rollbacker) *CompensationConsumer {
	return &CompensationConsumer{reader: reader, svc: svc, retryDelay: time.Second}
}

func (c *CompensationConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Logger.Info().Str("topic", mq.TopicCompensate).Msg("warehouse compensation consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Logger.Info().Msg("warehouse compensation consumer shutting down")
					return
				}
				logger.Logger.Error().Err(err).Msg("could not fetch compensation message, retrying")
				time.Sleep(time.Second)
				continue
			}

			for {
				if err := c.processMessage(ctx, msg); err == nil {
					break
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.retryDelay):
				}
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to commit compensation message")
			}
		}
	}()
}

func (c *CompensationConsumer) Stop() {
	c.reader.Close()
	c.wg.Wait()
}

func (c *CompensationConsumer) processMessage(parentCtx context.Context, msg kafka.Message) error {
	var orderID string
	if err := json.Unmarshal(msg.Value, &orderID); err != nil {
		logger.Logger.Error().Err(err).Msg("malformed compensation message, skipping")
		return nil
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	if err := c.svc.Rollback(ctx, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderID).Msg("warehouse rollback failed, will retry")
		return err
	}
	return nil
}
