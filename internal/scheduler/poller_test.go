package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"mercato/internal/pkg/mq"
)

type stubSource struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (s *stubSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *stubSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msgs...)
	return nil
}

func (s *stubSource) Close() error { return nil }

type recordingWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	wroteAt time.Time
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wroteAt = time.Now()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func newTestPoller(src *stubSource, writer *recordingWriter, delay time.Duration) *Poller {
	return &Poller{
		level:     mq.DelayTopic30s,
		delay:     delay,
		reader:    src,
		tracer:    otel.Tracer("test"),
		newWriter: func(string) messageWriter { return writer },
		writers:   make(map[string]messageWriter),
	}
}

// 队头未到期时必须原地等到期再转投：已读未提交的消息在
// 同一会话内不会被 kafka-go 重投，放走队头等于消息搁浅。
func TestDrainDueWaitsForHeadDeadline(t *testing.T) {
	enqueuedAt := time.Now()
	src := &stubSource{queue: []kafka.Message{{
		Time:    enqueuedAt,
		Value:   []byte(`"order-1"`),
		Headers: []kafka.Header{{Key: mq.RealTopicHeader, Value: []byte(mq.TopicOrderIntent)}},
	}}}
	writer := &recordingWriter{}
	p := newTestPoller(src, writer, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	p.drainDue(ctx)

	if len(writer.msgs) != 1 {
		t.Fatalf("republished messages = %d, want 1", len(writer.msgs))
	}
	if due := enqueuedAt.Add(100 * time.Millisecond); writer.wroteAt.Before(due) {
		t.Errorf("republished at %v, before deadline %v", writer.wroteAt, due)
	}
	if len(src.committed) != 1 {
		t.Errorf("committed messages = %d, want 1", len(src.committed))
	}
	if got := string(writer.msgs[0].Value); got != `"order-1"` {
		t.Errorf("republished payload = %s", got)
	}
}

// 缺 real-topic 头的消息没法转投，提交后丢弃，不能反复堵队头。
func TestDrainDueDropsMessagesWithoutTarget(t *testing.T) {
	src := &stubSource{queue: []kafka.Message{{
		Time:  time.Now().Add(-time.Minute),
		Value: []byte(`"order-1"`),
	}}}
	writer := &recordingWriter{}
	p := newTestPoller(src, writer, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	p.drainDue(ctx)

	if len(writer.msgs) != 0 {
		t.Errorf("republished messages = %d, want none", len(writer.msgs))
	}
	if len(src.committed) != 1 {
		t.Errorf("committed messages = %d, want 1 (dropped)", len(src.committed))
	}
}
