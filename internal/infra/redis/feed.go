package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/app"
)

const defaultFeedBuffer = 64

// Feed publishes slide updates over Redis pub/sub so every instance sees them.
type Feed struct {
	client *redis.Client
	buffer int
}

func NewFeed(client *redis.Client) *Feed {
	return &Feed{client: client, buffer: defaultFeedBuffer}
}

func (f *Feed) Publish(ctx context.Context, topic string, ev app.FeedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel(topic), payload).Err()
}

// Subscribe waits for the subscription to be confirmed so no later publish is missed.
// The returned channel is closed when the subscriber falls behind or is cancelled.
func (f *Feed) Subscribe(ctx context.Context, topic string) (<-chan app.FeedEvent, func(), error) {
	ps := f.client.Subscribe(ctx, f.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan app.FeedEvent, f.buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev app.FeedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("feed %s: decode: %v", topic, err)
					continue
				}
				select {
				case out <- ev:
				default:
					log.Printf("feed %s: dropping lagging subscriber", topic)
					_ = ps.Close()
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (f *Feed) channel(topic string) string {
	return "feed:" + topic
}
