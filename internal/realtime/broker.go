// Package realtime carries committed-change events from writers to live
// subscribers. Delivery is at-least-once while a subscription is connected
// and nothing is replayed across a disconnect; subscribers are expected to
// refetch after reconnecting.
package realtime

import (
	"context"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/models"

	jww "github.com/spf13/jwalterweatherman"
)

var (
	ErrDisconnected = apperror.Unavailable("live stream disconnected")
	ErrSlowConsumer = apperror.Unavailable("live stream subscriber fell behind")
	ErrBrokerClosed = apperror.Unavailable("live stream broker closed")
)

// Subscription is an open live stream. C is closed when the subscription
// ends; Err then tells a transport failure (non-nil) from a local Close (nil).
type Subscription interface {
	C() <-chan models.ChangeEvent
	Err() error
	Close() error
}

// Broker is the change-subscription primitive of the durable store.
type Broker interface {
	Publish(ctx context.Context, topic string, ev models.ChangeEvent) error
	// Subscribe returns once the subscription is acknowledged, so every event
	// published after it returns is delivered.
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
	Close() error
}

// Topic names mirror the row filters subscribers care about.
func MessagesTopic(conversationID string) string {
	return "messages:conversation_id=eq." + conversationID
}

func ConversationsTopic(userID string) string {
	return "conversations:participant=eq." + userID
}

func NotificationsTopic(userID string) string {
	return "notifications:user_id=eq." + userID
}

// Emit publishes one event per topic after a write has committed. Failures
// are logged only: the write already succeeded and subscribers recover by
// refetching.
func Emit(ctx context.Context, b Broker, table string, typ models.ChangeType, recordID string, record interface{}, topics ...string) {
	if b == nil {
		return
	}
	ev, err := models.NewChangeEvent(table, typ, recordID, record)
	if err != nil {
		jww.ERROR.Printf("ERROR: Failed to encode %s %s event for %s: %v", table, typ, recordID, err)
		return
	}
	for _, topic := range topics {
		ev.Topic = topic
		if err := b.Publish(ctx, topic, ev); err != nil {
			jww.WARN.Printf("Failed to publish %s %s on %s: %v", table, typ, topic, err)
		}
	}
}
