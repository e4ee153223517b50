package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	failOn map[string]bool
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.failOn[string(m.Key)] {
			return errors.New("broker unavailable")
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

type fakeStore struct {
	events []Event
	sent   []int64
	failed map[int64]string
}

func (s *fakeStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	n := min(batchSize, len(s.events))
	batch := s.events[:n]
	s.events = s.events[n:]
	return batch, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func (s *fakeStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatcher_Message(t *testing.T) {
	d := NewDispatcher(discardLogger(), &fakeProducer{}, "order.events")
	msg := d.Message(Event{
		ID:          7,
		AggregateID: "order-1",
		Type:        "order_confirmed",
		Payload:     []byte(`{"order_id":"order-1"}`),
		Headers:     map[string]string{"request_id": "req-1"},
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})

	assert.Equal(t, "order.events", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "order_confirmed", headers["event_type"])
	assert.Equal(t, "req-1", headers["request_id"])
	assert.Contains(t, headers["traceparent"], "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestRelay_RunOnce(t *testing.T) {
	store := &fakeStore{events: []Event{
		{ID: 1, AggregateID: "a", Type: "order_placed"},
		{ID: 2, AggregateID: "b", Type: "order_placed"},
		{ID: 3, AggregateID: "c", Type: "order_failed"},
	}}
	producer := &fakeProducer{failOn: map[string]bool{"b": true}}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "t"), "relay-1", WithBatchSize(10))

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed[2], "broker unavailable")
	assert.Len(t, producer.msgs, 2)

	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &fakeStore{events: []Event{{ID: 1, AggregateID: "a"}}}
	producer := &fakeProducer{}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "t"), "relay-1",
		WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()
		return len(producer.msgs) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
