package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/domain"
)

// ResponseStore keeps one response per student in a hash per slide:
// HSETNX responses:{sessionID}:{slideID} {studentID} {json}
type ResponseStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResponseStore(client *redis.Client, ttl time.Duration) *ResponseStore {
	return &ResponseStore{client: client, ttl: ttl}
}

func (s *ResponseStore) InsertResponse(ctx context.Context, r domain.Response) (bool, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	key := s.key(r.SessionID, r.SlideID)
	stored, err := s.client.HSetNX(ctx, key, r.StudentID, payload).Result()
	if err != nil {
		return false, err
	}
	if stored && s.ttl > 0 {
		_ = s.client.Expire(ctx, key, s.ttl).Err()
	}
	return stored, nil
}

func (s *ResponseStore) ListResponses(ctx context.Context, sessionID, slideID string) ([]domain.Response, error) {
	values, err := s.client.HVals(ctx, s.key(sessionID, slideID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(values))
	for _, raw := range values {
		var r domain.Response
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ResponseStore) key(sessionID, slideID string) string {
	return "responses:" + sessionID + ":" + slideID
}
