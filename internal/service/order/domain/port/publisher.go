package port

import "context"

// IntentPublisher 把订单意图投到延迟主题，宽限期后回流触发一致性校验。
// 意图事件只携带订单号，是进程崩溃后仍能触发补偿的持久化扳机。
type IntentPublisher interface {
	PublishIntent(ctx context.Context, orderID string) error
}

// CompensationPublisher 把补偿消息广播给资金和库存两侧。
type CompensationPublisher interface {
	PublishCompensation(ctx context.Context, orderID string) error
}

// NotificationPublisher 投递面向用户的通知，尽力而为。
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, recipients []string, subject, body string) error
}

// VerificationGuard 保证每张订单的延迟校验只生效一次。
// 意图消息 at-least-once 投递，重复到达靠它去重。
type VerificationGuard interface {
	// FirstRun 返回 true 表示本次是该订单的首次校验。
	FirstRun(ctx context.Context, orderID string) (bool, error)
	// Forget 释放 FirstRun 占下的名额。校验在占号之后失败时调用，
	// 让重新投递的意图消息能再次触发补偿。
	Forget(ctx context.Context, orderID string) error
}
