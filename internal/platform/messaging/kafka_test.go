package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"voteverse/internal/shared/events"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus, err := NewKafka([]string{"localhost:9092"}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, events.TopicRoundLocked, "test", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, events.TopicRoundOpened, events.Envelope{EventID: "ignored"}))
	require.NoError(t, bus.Publish(ctx, events.TopicRoundLocked, events.Envelope{
		EventID:   "evt-1",
		EventType: events.TopicRoundLocked,
		Data:      json.RawMessage(`{"round_index":2}`),
	}))

	select {
	case event := <-received:
		require.Equal(t, "evt-1", event.EventID)
		require.JSONEq(t, `{"round_index":2}`, string(event.Data))
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus, err := NewKafka(nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, bus.Subscribe(ctx, events.TopicRoundClosed, "test", func(context.Context, events.Envelope) error {
		return nil
	}))
	require.Equal(t, 1, bus.Subscribers(events.TopicRoundClosed))

	cancel()
	require.Eventually(t, func() bool {
		return bus.Subscribers(events.TopicRoundClosed) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	bus, err := NewKafka(nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, bus.Subscribe(ctx, events.TopicLeaderboardUpdated, "slow", func(context.Context, events.Envelope) error {
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = bus.Publish(ctx, events.TopicLeaderboardUpdated, events.Envelope{EventID: "evt"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
