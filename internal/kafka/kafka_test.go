package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishOrderEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{w: w, instance: "node-a"}

	at := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	err := p.PublishOrderEvent(context.Background(), domain.OrderEvent{
		ID: "ev-1", Type: domain.EventOrderStatusChanged, OrderID: "O1", OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "O1", string(m.Key))
	assert.Equal(t, at, m.Time)

	var ev domain.OrderEvent
	require.NoError(t, json.Unmarshal(m.Value, &ev))
	assert.Equal(t, "node-a", ev.Source)
	assert.Equal(t, domain.EventOrderStatusChanged, ev.Type)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, splitBrokers(""))
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs)), closed: make(chan struct{})}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	close(r.closed)
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type countingReloader struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (c *countingReloader) Reload(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return errors.New("db unavailable")
	}
	return nil
}

func (c *countingReloader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func eventMsg(t *testing.T, offset int64, source string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(domain.OrderEvent{ID: "ev", Type: domain.EventOrderCreated, OrderID: "O1", Source: source})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestConsumeReloadsOnForeignEvents(t *testing.T) {
	r := newFakeReader(
		eventMsg(t, 1, "node-b"),
		eventMsg(t, 2, "node-a"),
		kafka.Message{Offset: 3, Value: []byte("{not json")},
		eventMsg(t, 4, "node-c"),
	)
	cache := &countingReloader{failures: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consume(ctx, r, cache, "node-a", time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2, 3, 4}, r.commits())
	// one retry for the first event, nothing for our own or the malformed one
	assert.Equal(t, 3, cache.count())

	select {
	case <-r.closed:
	default:
		t.Fatal("reader not closed on shutdown")
	}
}
