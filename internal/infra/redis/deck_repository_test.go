package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/infra/memory"
)

func TestDeckRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		DeckLoader: memory.NewStaticDeckLoader(map[string]domain.Deck{
			"deck-1": sampleDeck(),
		}),
	}
	repo := NewDeckRepository(client, loader, time.Minute)

	_, err = repo.GetDeck(context.Background(), "deck-1")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("deck:deck-1") {
		t.Fatalf("expected deck cached in redis")
	}

	// A second repository sharing the cache must not hit the loader.
	other := NewDeckRepository(client, loader, time.Minute)
	deck, err := other.GetDeck(context.Background(), "deck-1")
	if err != nil {
		t.Fatalf("get deck from cache: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	slide, ok := deck.Slide("s1")
	if !ok || len(slide.Options) != 2 || !slide.Options[1].IsCorrect {
		t.Fatalf("expected full slide content from cache, got %+v", slide)
	}
	if ttl := mr.TTL("deck:deck-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with at most 10%% jitter, got %v", ttl)
	}
}

type countingLoader struct {
	DeckLoader
	calls int
}

func (l *countingLoader) LoadDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	l.calls++
	return l.DeckLoader.LoadDeck(ctx, deckID)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func sampleDeck() domain.Deck {
	return domain.Deck{
		ID: "deck-1",
		Slides: []domain.Slide{
			{
				ID:     "s1",
				Kind:   domain.SlideQuiz,
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "a", Text: "3"},
					{ID: "b", Text: "4", IsCorrect: true},
				},
			},
		},
	}
}
