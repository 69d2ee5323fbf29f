package app

import (
	"context"

	"liveclass-service/internal/domain"
)

// SessionRepository abstracts how classroom sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(sessionID, deckID string) *Session
	Get(sessionID string) (*Session, bool)
	DeleteIfEmpty(sessionID string)
}

// DeckRepository loads lesson decks (from cache/backing store).
type DeckRepository interface {
	GetDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// ResponseStore persists accepted responses.
type ResponseStore interface {
	ListResponses(ctx context.Context, sessionID, slideID string) ([]domain.Response, error)
	// InsertResponse stores r unless the student already answered the slide in that
	// session. It reports whether r was stored.
	InsertResponse(ctx context.Context, r domain.Response) (bool, error)
}

// SlideStateStore persists slide phases. Unknown slides are idle.
type SlideStateStore interface {
	GetSlideState(ctx context.Context, sessionID, slideID string) (domain.SlideState, error)
	SetSlideState(ctx context.Context, state domain.SlideState) error
}

// FeedEvent is one live update for a slide topic.
type FeedEvent struct {
	Response *domain.Response   `json:"response,omitempty"`
	State    *domain.SlideState `json:"state,omitempty"`
}

// Feed fans live updates out to subscribers, possibly across processes. A feed
// closes the channel of a subscriber that cannot keep up; the subscriber then
// resubscribes and replays from the store.
type Feed interface {
	Publish(ctx context.Context, topic string, ev FeedEvent) error
	Subscribe(ctx context.Context, topic string) (<-chan FeedEvent, func(), error)
}

// SlideTopic names the feed topic of one slide in one session.
func SlideTopic(sessionID, slideID string) string {
	return "slide:" + sessionID + ":" + slideID
}
