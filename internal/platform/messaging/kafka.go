package messaging

import (
	"context"
	"log/slog"
	"sync"

	"voteverse/internal/shared/events"
)

const subscriberBuffer = 128

// Kafka is the event bus used by the outbox relay, the leaderboard
// broadcaster and the stream hub. Delivery is in-process; the broker list is
// kept so the process config stays stable when an external broker is wired.
type Kafka struct {
	mu          sync.RWMutex
	brokers     []string
	subscribers map[string][]*subscriber
	logger      *slog.Logger
}

type subscriber struct {
	group string
	ch    chan events.Envelope
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		brokers:     append([]string(nil), brokers...),
		subscribers: make(map[string][]*subscriber),
		logger:      logger,
	}, nil
}

// Publish never blocks on a slow consumer: a full subscriber queue drops the
// event for that subscriber only.
func (k *Kafka) Publish(ctx context.Context, topic string, event events.Envelope) error {
	k.mu.RLock()
	subs := append([]*subscriber(nil), k.subscribers[topic]...)
	k.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- event:
		default:
			k.logger.Warn("dropping event for slow subscriber",
				"event", "kafka_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", sub.group,
				"event_id", event.EventID,
			)
		}
	}

	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"subscribers", len(subs),
	)
	return nil
}

// Subscribe delivers topic events to handler on a dedicated goroutine until
// ctx ends.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	sub := &subscriber{group: consumerGroup, ch: make(chan events.Envelope, subscriberBuffer)}

	k.mu.Lock()
	k.subscribers[topic] = append(k.subscribers[topic], sub)
	k.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				k.removeSubscriber(topic, sub)
				return
			case event := <-sub.ch:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("consumer handler failed",
						"event", "kafka_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Subscribers counts live subscriptions on topic.
func (k *Kafka) Subscribers(topic string) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.subscribers[topic])
}

func (k *Kafka) removeSubscriber(topic string, target *subscriber) {
	k.mu.Lock()
	defer k.mu.Unlock()

	items := k.subscribers[topic]
	filtered := make([]*subscriber, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		delete(k.subscribers, topic)
		return
	}
	k.subscribers[topic] = filtered
}
