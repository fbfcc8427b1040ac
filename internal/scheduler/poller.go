// Package scheduler 实现基于轮询的延迟消息投递。
// 消息先进延迟级别主题排队，到期后按 real-topic 头转投真实主题。
// 同一级别主题内延迟时长一致，所以队头未到期时后面的必然也未到期。
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/logger"
	"mercato/internal/pkg/mq"
)

// Levels 是延迟级别主题和对应时长的映射。
var Levels = map[string]time.Duration{
	mq.DelayTopic30s: 30 * time.Second,
	mq.DelayTopic5m:  5 * time.Minute,
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller 轮询一个延迟级别主题，把到期的消息转投到真实主题。
type Poller struct {
	level  string
	delay  time.Duration
	reader mq.MessageSource
	tracer trace.Tracer

	newWriter func(topic string) messageWriter
	writers   map[string]messageWriter
	mu        sync.Mutex
}

func NewPoller(brokers []string, level string, delay time.Duration, tracer trace.Tracer) *Poller {
	return &Poller{
		level:  level,
		delay:  delay,
		reader: mq.NewKafkaReader(brokers, level, "delay-scheduler-"+level),
		tracer: tracer,
		newWriter: func(topic string) messageWriter {
			return mq.NewKafkaWriter(brokers, topic)
		},
		writers: make(map[string]messageWriter),
	}
}

// Run 以 interval 为周期轮询，直到 ctx 取消。
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	logger.Logger.Info().Str("level", p.level).Dur("delay", p.delay).Msg("delay poller started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer p.reader.Close()
	defer p.closeWriters()

	for {
		select {
		case <-ticker.C:
			p.drainDue(ctx)
		case <-ctx.Done():
			logger.Logger.Info().Str("level", p.level).Msg("delay poller shutting down")
			return
		}
	}
}

// drainDue 逐条转投队头消息。队头未到期时原地等到期：
// kafka-go 同一会话内不提交也不会重投已读消息，放走队头
// 等于把它搁置到 rebalance 或重启之后。
func (p *Poller) drainDue(parentCtx context.Context) {
	for {
		fetchCtx, cancel := context.WithTimeout(parentCtx, 2*time.Second)
		msg, err := p.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			// 没有新消息或上层取消，等下一次 tick
			return
		}

		ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
		ctx, span := p.tracer.Start(ctx, "scheduler.Republish", trace.WithAttributes(
			attribute.String("delay.level", p.level),
		))

		if due := p.deliveryTime(msg); time.Now().Before(due) {
			span.AddEvent("HeadMessageNotDue")
			if !sleepUntil(parentCtx, due) {
				span.End()
				return
			}
		}

		realTopic := mq.Header(msg.Headers, mq.RealTopicHeader)
		if realTopic == "" {
			logger.Ctx(ctx).Error().Str("level", p.level).Msg("message without real-topic header, dropping")
			if err := p.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit dropped message")
			}
			span.End()
			continue
		}

		if err := p.republish(ctx, realTopic, msg); err != nil {
			// 转投失败就不提交 offset，下一轮整条重来
			logger.Ctx(ctx).Error().Err(err).Str("topic", realTopic).Msg("failed to republish due message")
			span.RecordError(err)
			span.SetStatus(codes.Error, "republish failed")
			span.End()
			return
		}
		if err := p.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit republished message")
			span.RecordError(err)
			span.End()
			return
		}

		logger.Ctx(ctx).Info().Str("level", p.level).Str("topic", realTopic).Msg("delayed message republished")
		span.AddEvent("MessageRepublished", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

// deliveryTime 取消息的投递时刻：优先用生产方声明的截止头，
// 缺席时退回"入队时间 + 级别时长"。
func (p *Poller) deliveryTime(msg kafka.Message) time.Time {
	if raw := mq.Header(msg.Headers, mq.DelayDeadlineHeader); raw != "" {
		if due, err := time.Parse(time.RFC3339, raw); err == nil {
			return due
		}
	}
	return msg.Time.Add(p.delay)
}

// sleepUntil 阻塞到时刻 t；ctx 先取消时返回 false。
func sleepUntil(ctx context.Context, t time.Time) bool {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Poller) republish(ctx context.Context, realTopic string, msg kafka.Message) error {
	p.mu.Lock()
	writer, ok := p.writers[realTopic]
	if !ok {
		writer = p.newWriter(realTopic)
		p.writers[realTopic] = writer
	}
	p.mu.Unlock()

	out := kafka.Message{Key: msg.Key, Value: msg.Value}
	mq.InjectTraceContext(ctx, &out.Headers)
	return writer.WriteMessages(ctx, out)
}

func (p *Poller) closeWriters() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			logger.Logger.Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}
