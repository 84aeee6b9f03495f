package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const topicPrefix = "research.session."

// NewPubSub creates the process-wide in-memory pub/sub all session buses
// share. Each session publishes on its own topic, so sessions never see each
// other's events.
func NewPubSub(buffer int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: buffer,
			// Each event is acked by the subscriber before the next one is
			// published, which keeps per-producer ordering strict and makes
			// a slow consumer throttle the producer instead of losing
			// events.
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NopLogger{},
	)
}

// Bus is a handle on one session's progress-event stream. Stages and the
// fan-out executor receive it explicitly; they never probe for a transport.
type Bus struct {
	pubSub *gochannel.GoChannel
	topic  string
}

// NewBus binds a bus to the session's topic.
func NewBus(pubSub *gochannel.GoChannel, sessionID string) *Bus {
	return &Bus{
		pubSub: pubSub,
		topic:  topicPrefix + sessionID,
	}
}

// Topic returns the underlying pub/sub topic name.
func (b *Bus) Topic() string {
	return b.topic
}

// Publish delivers the event to every current subscriber exactly once, in
// publish order. With no subscribers attached the event is discarded. When a
// subscriber's buffer is full, Publish blocks until it drains rather than
// dropping the event.
func (b *Bus) Publish(ev ProgressEvent) {
	if ev.ID == "" {
		ev.ID = watermill.NewUUID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	// Publish only errors when the pub/sub is already closed, which happens
	// during shutdown; the event has nowhere to go either way.
	_ = b.pubSub.Publish(b.topic, message.NewMessage(ev.ID, payload))
}

// Subscribe returns a stream of this session's events. The channel closes
// when ctx is cancelled or the pub/sub shuts down. Each subscriber gets its
// own copy of every event published after the subscription is made.
func (b *Bus) Subscribe(ctx context.Context) (<-chan ProgressEvent, error) {
	msgs, err := b.pubSub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, err
	}

	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev ProgressEvent
			unmarshalErr := json.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if unmarshalErr != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
