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

type memStore struct {
	mu     sync.Mutex
	events []Event
	sent   []int64
	failed map[int64]string
}

func (s *memStore) LockBatch(_ context.Context, _ string, n int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) < n {
		n = len(s.events)
	}
	batch := s.events[:n]
	s.events = s.events[n:]
	return batch, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = msg
	return nil
}

func (s *memStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

type memProducer struct {
	msgs   []kafka.Message
	failOn string
}

func (p *memProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if string(m.Key) == p.failOn {
			return errors.New("broker down")
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRelayFlush(t *testing.T) {
	t.Parallel()

	store := &memStore{events: []Event{
		{ID: 1, AggregateID: "b-1", Type: "BookingStatusChanged", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"},
		{ID: 2, AggregateID: "b-2", Type: "ReservationReleaseRequested", Payload: []byte(`{}`)},
		{ID: 3, AggregateID: "b-3", Type: "BookingStatusChanged", Payload: []byte(`{}`)},
	}}
	prod := &memProducer{failOn: "b-2"}
	relay := NewRelay(discard(), store, NewDispatcher(discard(), prod, "booking.events"), "test", WithBatchSize(10))

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed, int64(2))

	require.Len(t, prod.msgs, 2)
	assert.Equal(t, "booking.events", prod.msgs[0].Topic)
	assert.Equal(t, "BookingStatusChanged", HeaderValue(prod.msgs[0].Headers, HeaderEventType))
	assert.Equal(t, "00-abc-def-01", HeaderValue(prod.msgs[0].Headers, "traceparent"))
}

func TestRelayFlushEmpty(t *testing.T) {
	t.Parallel()

	relay := NewRelay(discard(), &memStore{}, NewDispatcher(discard(), &memProducer{}, "t"), "test")
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventLastAttempt(t *testing.T) {
	t.Parallel()

	assert.False(t, Event{RetryCount: 0}.LastAttempt())
	assert.False(t, Event{RetryCount: MaxAttempts - 2}.LastAttempt())
	assert.True(t, Event{RetryCount: MaxAttempts - 1}.LastAttempt())
}
