package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
	"mercato/internal/service/catalog/domain"
)

// SnapshotConsumer 消费 inventory-snapshot 主题并刷新展示缓存。
type SnapshotConsumer struct {
	reader *kafka.Reader
	cache  domain.StockCache
	wg     sync.WaitGroup
}

func NewSnapshotConsumer(reader *kafka.Reader, cache domain.StockCache) *SnapshotConsumer {
	return &SnapshotConsumer{reader: reader, cache: cache}
}

func (c *SnapshotConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Logger.Info().Str("topic", c.reader.Config().Topic).Msg("inventory snapshot consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Logger.Info().Msg("inventory snapshot consumer shutting down")
					return
				}
				logger.Logger.Error().Err(err).Msg("could not fetch snapshot message, retrying")
				time.Sleep(time.Second)
				continue
			}

			c.processMessage(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to commit snapshot message")
			}
		}
	}()
}

func (c *SnapshotConsumer) Stop() {
	c.reader.Close()
	c.wg.Wait()
}

func (c *SnapshotConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	var totals map[string]int
	if err := json.Unmarshal(msg.Value, &totals); err != nil {
		logger.Logger.Error().Err(err).Msg("malformed snapshot message, skipping")
		return
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	if err := c.cache.StoreSnapshot(ctx, totals); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to cache inventory snapshot")
		return
	}
	logger.Ctx(ctx).Debug().Int("products", len(totals)).Msg("inventory snapshot cached")
}
