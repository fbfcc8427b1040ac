package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mercato/internal/pkg/mq"
	"mercato/internal/service/warehouse/domain"
)

// NotificationEvent 与 notification-service 约定的通知载荷。
type NotificationEvent struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// KafkaAlarmNotifier 把低库存告警投到 notifications 主题，
// 由 notification-service 负责送达仓库管理员。
type KafkaAlarmNotifier struct {
	writer *kafka.Writer
}

func NewKafkaAlarmNotifier(writer *kafka.Writer) *KafkaAlarmNotifier {
	return &KafkaAlarmNotifier{writer: writer}
}

func (n *KafkaAlarmNotifier) NotifyLowStock(ctx context.Context, warehouse *domain.Warehouse, product domain.WarehouseProduct) error {
	if len(warehouse.AdminEmails) == 0 {
		return nil
	}
	event := NotificationEvent{
		Recipients: warehouse.AdminEmails,
		Subject:    fmt.Sprintf("Low stock alarm: %s", warehouse.Name),
		Body: fmt.Sprintf("Product %s in warehouse %s dropped to %d units, below the alarm threshold of %d.",
			product.ProductID, warehouse.Name, product.Quantity, product.AlarmThreshold),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal alarm notification")
	}
	return mq.ProduceMessage(ctx, n.writer, []byte(warehouse.ID), payload)
}

// KafkaSnapshotPublisher 广播全网库存快照，供下游缓存消费。
type KafkaSnapshotPublisher struct {
	writer *kafka.Writer
}

func NewKafkaSnapshotPublisher(writer *kafka.Writer) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{writer: writer}
}

func (p *KafkaSnapshotPublisher) PublishSnapshot(ctx context.Context, totals map[string]int) error {
	payload, err := json.Marshal(totals)
	if err != nil {
		return errors.Wrap(err, "marshal inventory snapshot")
	}
	return mq.ProduceMessage(ctx, p.writer, []byte("inventory"), payload)
}
