package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/domain"
)

// SlideStateStore keeps slide phases in a hash per session:
// HSET slides:{sessionID} {slideID} {json}
type SlideStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlideStateStore(client *redis.Client, ttl time.Duration) *SlideStateStore {
	return &SlideStateStore{client: client, ttl: ttl}
}

func (s *SlideStateStore) GetSlideState(ctx context.Context, sessionID, slideID string) (domain.SlideState, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), slideID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SlideState{SessionID: sessionID, SlideID: slideID, Phase: domain.PhaseIdle}, nil
	}
	if err != nil {
		return domain.SlideState{}, err
	}
	var state domain.SlideState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.SlideState{}, err
	}
	return state, nil
}

func (s *SlideStateStore) SetSlideState(ctx context.Context, state domain.SlideState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	key := s.key(state.SessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, state.SlideID, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SlideStateStore) key(sessionID string) string {
	return "slides:" + sessionID
}
