// Package mq 封装了 kafka-go 的 reader/writer 构造和追踪上下文的注入/提取。
// 所有总线消息以订单号作为分区键，保证同一订单的消息有序。
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// 事件总线主题。payload 均为 JSON 编码的订单号字符串，
// inventory-snapshot 除外（productId -> 总量 的映射）。
const (
	TopicOrderIntent       = "order-intent"
	TopicCompensate        = "compensate"
	TopicInventorySnapshot = "inventory-snapshot"
	TopicNotifications     = "notifications"
)

// 延迟级别主题：消息先进入延迟主题，由 delay-scheduler 在到期后
// 按 real-topic 头转投到真实主题。
const (
	DelayTopic30s = "delay_topic_30s"
	DelayTopic5m  = "delay_topic_5m"

	RealTopicHeader = "real-topic"
	// DelayDeadlineHeader 记录消息允许被转投的最早时刻，RFC3339
	DelayDeadlineHeader = "delay-timestamp"
)

// MessageSource 是消费循环对 reader 的最小依赖，*kafka.Reader 天然满足。
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 创建一个指定主题的 Writer。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 按 Key 哈希，同一订单进同一分区
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaReader 创建一个带消费组的 Reader。
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // 手动提交
	})
}

// ProduceMessage 发送一条消息并注入当前追踪上下文。
func ProduceMessage(ctx context.Context, writer *kafka.Writer, key, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{Key: key, Value: value, Headers: headers}
	InjectTraceContext(ctx, &msg.Headers)
	return writer.WriteMessages(ctx, msg)
}

// InjectTraceContext 把 ctx 中的追踪信息写进 Kafka 消息头。
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	carrier := KafkaHeaderCarrier(*headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	*headers = carrier
}

// ExtractTraceContext 从 Kafka 消息头恢复追踪上下文。
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

// Header 按 key 读取单个消息头，不存在返回空串。
func Header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
