package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/repositories"
)

// queueSource simulates the outbox: each PublishOutbox call drains up to
// limit of the pending events through the publish callback.
type queueSource struct {
	pending []outboxRow
}

type outboxRow struct {
	topic   string
	payload []byte
}

func (q *queueSource) PublishOutbox(ctx context.Context, publish repositories.PublishFunc, limit int) (int, error) {
	n := limit
	if len(q.pending) < n {
		n = len(q.pending)
	}
	for _, row := range q.pending[:n] {
		if err := publish(row.topic, row.payload); err != nil {
			return 0, err
		}
	}
	q.pending = q.pending[n:]
	return n, nil
}

type capturingBus struct {
	topics   []string
	payloads [][]byte
}

func (b *capturingBus) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		b.topics = append(b.topics, topic)
		b.payloads = append(b.payloads, msg.Payload)
	}
	return nil
}

func (b *capturingBus) Close() error { return nil }

func TestPublisher_PublishOnceDrainsBatch(t *testing.T) {
	source := &queueSource{pending: []outboxRow{
		{topic: "TRADE.@alice", payload: []byte(`{"n":1}`)},
		{topic: "TRADE.@bob", payload: []byte(`{"n":2}`)},
	}}
	bus := &capturingBus{}
	publisher := NewPublisher(source, bus, 100, zap.NewNop())

	published, err := publisher.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{"TRADE.@alice", "TRADE.@bob"}, bus.topics)

	published, err = publisher.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}

func TestPublisher_BatchLimitRespected(t *testing.T) {
	source := &queueSource{}
	for i := 0; i < 5; i++ {
		source.pending = append(source.pending, outboxRow{topic: "TRADE.@alice", payload: []byte(`{}`)})
	}
	bus := &capturingBus{}
	publisher := NewPublisher(source, bus, 2, zap.NewNop())

	published, err := publisher.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Len(t, source.pending, 3)
}

func TestNextDelay_AdaptivePacing(t *testing.T) {
	// Full batch drains immediately
	assert.Equal(t, time.Duration(0), NextDelay(100, 100, 0))
	// Partial batch pauses briefly
	assert.Equal(t, partialBatchDelay, NextDelay(1, 100, 0))
	// Idle backs off, then hits the ceiling
	assert.Equal(t, emptyBatchDelay, NextDelay(0, 100, 1))
	assert.Equal(t, emptyBatchDelay, NextDelay(0, 100, 9))
	assert.Equal(t, maxBackoff, NextDelay(0, 100, 10))
	assert.Equal(t, maxBackoff, NextDelay(0, 100, 50))
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	messages, err := bus.Subscribe(ctx, "TRADE.@alice")
	require.NoError(t, err)

	require.NoError(t, bus.Publish("TRADE.@alice", message.NewMessage("1", []byte(`{"price":100}`))))

	select {
	case msg := <-messages:
		assert.Equal(t, []byte(`{"price":100}`), []byte(msg.Payload))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
