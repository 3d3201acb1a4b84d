package marketdata

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// Bus is the in-process event fabric. Outbox events are published on
// topics named "<EVENT_TYPE>.<symbol>"; ordering is preserved within a
// topic only.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

// NewBus creates a gochannel-backed bus
func NewBus(logger *zap.Logger) *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1000},
		watermill.NopLogger{},
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish implements message.Publisher
func (b *Bus) Publish(topic string, messages ...*message.Message) error {
	return b.pubsub.Publish(topic, messages...)
}

// Subscribe returns a channel of messages for a topic
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
