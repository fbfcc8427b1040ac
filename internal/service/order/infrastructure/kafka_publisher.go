package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercato/internal/pkg/mq"
)

// KafkaIntentPublisher 把订单意图写进延迟主题。消息带 real-topic 头，
// delay-scheduler 在宽限期到点后把它转投回 order-intent。
type KafkaIntentPublisher struct {
	delayWriter *kafka.Writer
	gracePeriod time.Duration
}

// NewKafkaIntentPublisher 创建意图发布器。delayTopic 是配置的延迟级别
// 主题，gracePeriod 是该级别的时长，二者由启动代码配套传入。
func NewKafkaIntentPublisher(brokers []string, delayTopic string, gracePeriod time.Duration) *KafkaIntentPublisher {
	return &KafkaIntentPublisher{
		delayWriter: mq.NewKafkaWriter(brokers, delayTopic),
		gracePeriod: gracePeriod,
	}
}

func (p *KafkaIntentPublisher) PublishIntent(ctx context.Context, orderID string) error {
	payload, err := json.Marshal(orderID)
	if err != nil {
		return errors.Wrap(err, "marshal order intent")
	}
	deadline := time.Now().Add(p.gracePeriod).Format(time.RFC3339)
	return mq.ProduceMessage(ctx, p.delayWriter, []byte(orderID), payload,
		kafka.Header{Key: mq.RealTopicHeader, Value: []byte(mq.TopicOrderIntent)},
		kafka.Header{Key: mq.DelayDeadlineHeader, Value: []byte(deadline)},
	)
}

func (p *KafkaIntentPublisher) Close() error { return p.delayWriter.Close() }

// KafkaCompensationPublisher 把补偿消息广播给资金和库存两侧的消费组。
type KafkaCompensationPublisher struct {
	writer *kafka.Writer
}

func NewKafkaCompensationPublisher(writer *kafka.Writer) *KafkaCompensationPublisher {
	return &KafkaCompensationPublisher{writer: writer}
}

func (p *KafkaCompensationPublisher) PublishCompensation(ctx context.Context, orderID string) error {
	payload, err := json.Marshal(orderID)
	if err != nil {
		return errors.Wrap(err, "marshal compensation")
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(orderID), payload)
}

// NotificationEvent 与 notification-service 约定的通知载荷。
type NotificationEvent struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// KafkaNotificationPublisher 把面向用户的通知交给 notification-service 送达。
type KafkaNotificationPublisher struct {
	writer *kafka.Writer
}

func NewKafkaNotificationPublisher(writer *kafka.Writer) *KafkaNotificationPublisher {
	return &KafkaNotificationPublisher{writer: writer}
}

func (p *KafkaNotificationPublisher) PublishNotification(ctx context.Context, recipients []string, subject, body string) error {
	payload, err := json.Marshal(NotificationEvent{Recipients: recipients, Subject: subject, Body: body})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(subject), payload)
}
