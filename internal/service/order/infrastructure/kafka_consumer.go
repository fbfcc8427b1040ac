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

// ConsistencyVerifier 对单张订单执行延迟一致性校验。
type ConsistencyVerifier interface {
	VerifyConsistency(ctx context.Context, orderID string) error
}

// IntentConsumer 消费宽限期到点后回流的 order-intent 消息，
// 对每张订单跑一次一致性校验。校验失败不提交 offset：
// 就地退避重试，进程重启后也会从已提交位点重放。
type IntentConsumer struct {
	reader     mq.MessageSource
	verifier   ConsistencyVerifier
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewIntentConsumer(reader mq.MessageSource, verifier ConsistencyVerifier) *IntentConsumer {
	return &IntentConsumer{reader: reader, verifier: verifier, retryDelay: time.Second}
}

func (c *IntentConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Logger.Info().Str("topic", mq.TopicOrderIntent).Msg("order intent consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Logger.Info().Msg("order intent consumer shutting down")
					return
				}
				logger.Logger.Error().Err(err).Msg("could not fetch intent message, retrying")
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
				logger.Logger.Error().Err(err).Msg("failed to commit intent message")
			}
		}
	}()
}

func (c *IntentConsumer) Stop() {
	c.reader.Close()
	c.wg.Wait()
}

func (c *IntentConsumer) processMessage(parentCtx context.Context, msg kafka.Message) error {
	var orderID string
	if err := json.Unmarshal(msg.Value, &orderID); err != nil {
		// 毒消息重投也救不回来，记录后跳过
		logger.Logger.Error().Err(err).Msg("malformed intent message, skipping")
		return nil
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	if err := c.verifier.VerifyConsistency(ctx, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderID).Msg("consistency verification failed, will retry")
		return err
	}
	return nil
}
