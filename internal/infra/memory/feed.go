package memory

import (
	"context"
	"log"
	"sync"

	"liveclass-service/internal/app"
)

// DefaultFeedBuffer is the per-subscriber backlog before a subscriber is dropped.
const DefaultFeedBuffer = 64

// Feed is an in-process app.Feed. Subscribers whose buffer is full are dropped and
// their channel closed; they are expected to resubscribe and reload.
type Feed struct {
	buffer int

	mu     sync.Mutex
	topics map[string]map[chan app.FeedEvent]struct{}
}

func NewFeed() *Feed {
	return NewFeedWithBuffer(DefaultFeedBuffer)
}

func NewFeedWithBuffer(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{buffer: buffer, topics: make(map[string]map[chan app.FeedEvent]struct{})}
}

func (f *Feed) Publish(_ context.Context, topic string, ev app.FeedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.topics[topic] {
		select {
		case ch <- ev:
		default:
			log.Printf("feed %s: dropping lagging subscriber", topic)
			f.removeLocked(topic, ch)
		}
	}
	return nil
}

func (f *Feed) Subscribe(_ context.Context, topic string) (<-chan app.FeedEvent, func(), error) {
	ch := make(chan app.FeedEvent, f.buffer)
	f.mu.Lock()
	subs, ok := f.topics[topic]
	if !ok {
		subs = make(map[chan app.FeedEvent]struct{})
		f.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		f.removeLocked(topic, ch)
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscribers a topic has.
func (f *Feed) Subscribers(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics[topic])
}

func (f *Feed) removeLocked(topic string, ch chan app.FeedEvent) {
	subs := f.topics[topic]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(f.topics, topic)
	}
}
