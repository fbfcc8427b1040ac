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

type flakyVerifier struct {
	failures int32
	calls    int32
}

func (f *flakyVerifier) VerifyConsistency(_ context.Context, _ string) error {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return errors.New("repo down")
	}
	return nil
}

// 校验抛错时不能提交 offset，否则这张订单的一致性检查就永远丢了；
// 重试成功后才提交。
func TestIntentConsumerCommitsOnlyAfterVerification(t *testing.T) {
	src := &stubSource{
		queue:     []kafka.Message{{Value: []byte(`"order-1"`)}},
		committed: make(chan kafka.Message, 1),
	}
	verifier := &flakyVerifier{failures: 2}

	c := NewIntentConsumer(src, verifier)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	select {
	case <-src.committed:
	case <-time.After(2 * time.Second):
		t.Fatal("intent never committed")
	}
	cancel()
	c.Stop()

	if got := atomic.LoadInt32(&verifier.calls); got != 3 {
		t.Errorf("VerifyConsistency calls = %d, want 3 (two failures then success)", got)
	}
}

// 毒消息解析不了，跳过并提交，不能卡住分区。
func TestIntentConsumerSkipsMalformedMessages(t *testing.T) {
	src := &stubSource{
		queue:     []kafka.Message{{Value: []byte(`{not json`)}},
		committed: make(chan kafka.Message, 1),
	}
	verifier := &flakyVerifier{}

	c := NewIntentConsumer(src, verifier)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	select {
	case <-src.committed:
	case <-time.After(2 * time.Second):
		t.Fatal("malformed message never committed")
	}
	cancel()
	c.Stop()

	if got := atomic.LoadInt32(&verifier.calls); got != 0 {
		t.Errorf("VerifyConsistency calls = %d, want 0", got)
	}
}
