package infrastructure

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type stubSource struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed chan kafka.Message
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
	for _, msg := range msgs {
		s.committed <- msg
	}
	return nil
}

func (s *stubSource) Close() error { return nil }

type flakyRollbacker struct {
	failures int32
	calls    int32
}

func (f *flakyRollbacker) Rollback(_ context.Context, _ string) error {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return errors.New("db down")
	}
	return nil
}

// 回滚抛错时不能提交 offset；重试成功后才提交，预占库存不会卡死。
func TestCompensationConsumerCommitsOnlyAfterSuccess(t *testing.T) {
	src := &stubSource{
		queue:     []kafka.Message{{Value: []byte(`"order-1"`)}},
		committed: make(chan kafka.Message, 1),
	}
	rb := &flakyRollbacker{failures: 1}

	c := NewCompensationConsumer(src, rb)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	select {
	case <-src.committed:
	case <-time.After(2 * time.Second):
		t.Fatal("message never committed")
	}
	cancel()
	c.Stop()

	if got := atomic.LoadInt32(&rb.calls); got != 2 {
		t.Errorf("Rollback calls = %d, want 2 (one failure then success)", got)
	}
}
