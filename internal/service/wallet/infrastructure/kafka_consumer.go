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

// Compensator 按订单号冲正一笔扣款。
type Compensator interface {
	Compensate(ctx context.Context, orderID string) error
}

// CompensationConsumer 监听 compensate 主题，驱动资金冲正。
// 投递语义是 at-least-once：Compensate 本身幂等，重复消息无害。
// 冲正失败不提交 offset，就地退避重试，重启后从已提交位点重放。
type CompensationConsumer struct {
	reader     mq.MessageSource
	svc        Compensator
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewCompensationConsumer(reader mq.MessageSource, svc Compensator) *CompensationConsumer {
	return &CompensationConsumer{reader: reader, svc: svc, retryDelay: time.Second}
}

// Start 启动消费循环，直到 ctx 取消。
func (c *CompensationConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Logger.Info().Str("topic", mq.TopicCompensate).Msg("wallet compensation consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Logger.Info().Msg("wallet compensation consumer shutting down")
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

// Stop 等待消费循环退出并关闭 reader。
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
	if err := c.svc.Compensate(ctx, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderID).Msg("wallet compensation failed, will retry")
		return err
	}
	return nil
}
