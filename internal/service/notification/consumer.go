// Package notification 消费 notifications 主题并把消息送达收件人。
// 送达是尽力而为的：失败只记录，不重投。
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
)

// Event 是总线上的通知载荷，与各生产方约定一致。
type Event struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// Mailer 抽象实际的送达通道。
type Mailer interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// LogMailer 把邮件写进日志，开发和演示环境用。
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, recipients []string, subject, body string) error {
	logger.Ctx(ctx).Info().
		Strs("recipients", recipients).
		Str("subject", subject).
		Str("body", body).
		Msg("email sent")
	return nil
}

// Consumer 是通知服务的消费循环。
type Consumer struct {
	reader *kafka.Reader
	mailer Mailer
	tracer trace.Tracer
	wg     sync.WaitGroup
}

func NewConsumer(reader *kafka.Reader, mailer Mailer, tracer trace.Tracer) *Consumer {
	return &Consumer{reader: reader, mailer: mailer, tracer: tracer}
}

func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Logger.Info().Str("topic", c.reader.Config().Topic).Msg("notification consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Logger.Info().Msg("notification consumer shutting down")
					return
				}
				logger.Logger.Error().Err(err).Msg("could not fetch notification message, retrying")
				time.Sleep(time.Second)
				continue
			}

			c.processMessage(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Logger.Error().Err(err).Msg("failed to commit notification message")
			}
		}
	}()
}

func (c *Consumer) Stop() {
	c.reader.Close()
	c.wg.Wait()
}

func (c *Consumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "notification.Process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("malformed notification message, skipping")
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmarshal failed")
		return
	}
	if len(event.Recipients) == 0 {
		span.AddEvent("NoRecipients")
		return
	}

	if err := c.mailer.Send(ctx, event.Recipients, event.Subject, event.Body); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("subject", event.Subject).Msg("notification delivery failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return
	}
	span.AddEvent("NotificationDelivered")
}
