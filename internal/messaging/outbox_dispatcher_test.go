package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu      sync.Mutex
	rows    []OutboxRow
	sent    []int64
	retries map[int64]time.Time
	err     error
}

func (o *fakeOutbox) Claim(ctx context.Context, limit int, lease time.Duration) ([]OutboxRow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	n := min(limit, len(o.rows))
	claimed := o.rows[:n]
	o.rows = o.rows[n:]
	return claimed, nil
}

func (o *fakeOutbox) MarkSent(ctx context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, id)
	return nil
}

func (o *fakeOutbox) MarkRetry(ctx context.Context, id int64, nextRetry time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retries == nil {
		o.retries = map[int64]time.Time{}
	}
	o.retries[id] = nextRetry
	return nil
}

type fakePublisher struct {
	mu      sync.Mutex
	keys    []string
	msgs    []Message
	failFor string
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.ID == p.failFor {
		return errors.New("channel closed")
	}
	p.keys = append(p.keys, routingKey)
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatch_PublishesAndMarksRows(t *testing.T) {
	outbox := &fakeOutbox{rows: []OutboxRow{
		{ID: 1, EventID: "e-1", EventType: "ORDER_REQUESTED", Payload: []byte(`{"order_id":"o-1"}`)},
		{ID: 2, EventID: "e-2", EventType: "ORDER_VALIDATED", Payload: []byte(`{"order_id":"o-1"}`), Attempts: 2},
		{ID: 3, EventID: "e-3", EventType: "PAYMENT_INITIATED", Payload: []byte(`{"order_id":"o-1"}`)},
	}}
	pub := &fakePublisher{failFor: "e-2"}
	d := NewOutboxDispatcher(outbox, pub, DispatcherConfig{BatchSize: 10}, discardLogger())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	sent, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	assert.Equal(t, []int64{1, 3}, outbox.sent)
	require.Contains(t, outbox.retries, int64(2))
	assert.Equal(t, now.Add(8*time.Second), outbox.retries[2])

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, Message{ID: "e-1", Type: "ORDER_REQUESTED", Body: []byte(`{"order_id":"o-1"}`)}, pub.msgs[0])
	assert.Equal(t, []string{contracts.OrderEventRoutingKey, contracts.OrderEventRoutingKey}, pub.keys)
}

func TestDispatch_RespectsBatchSize(t *testing.T) {
	outbox := &fakeOutbox{}
	for i := range 5 {
		outbox.rows = append(outbox.rows, OutboxRow{ID: int64(i + 1), EventID: "e"})
	}
	d := NewOutboxDispatcher(outbox, &fakePublisher{}, DispatcherConfig{BatchSize: 2}, discardLogger())

	sent, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, outbox.rows, 3)
}

func TestDispatch_ClaimError(t *testing.T) {
	outbox := &fakeOutbox{err: errors.New("pool closed")}
	d := NewOutboxDispatcher(outbox, &fakePublisher{}, DispatcherConfig{}, discardLogger())

	_, err := d.Dispatch(context.Background())
	assert.ErrorContains(t, err, "pool closed")
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{9, 32 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}
