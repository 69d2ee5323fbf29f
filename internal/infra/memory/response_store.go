package memory

import (
	"context"
	"sort"
	"sync"

	"liveclass-service/internal/domain"
)

type responseKey struct {
	sessionID string
	slideID   string
	studentID string
}

// ResponseStore keeps responses in process memory, one per student per slide.
type ResponseStore struct {
	mu        sync.RWMutex
	responses map[responseKey]domain.Response
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{responses: make(map[responseKey]domain.Response)}
}

func (s *ResponseStore) InsertResponse(_ context.Context, r domain.Response) (bool, error) {
	key := responseKey{sessionID: r.SessionID, slideID: r.SlideID, studentID: r.StudentID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[key]; ok {
		return false, nil
	}
	s.responses[key] = r
	return true, nil
}

func (s *ResponseStore) ListResponses(_ context.Context, sessionID, slideID string) ([]domain.Response, error) {
	s.mu.RLock()
	out := make([]domain.Response, 0)
	for key, r := range s.responses {
		if key.sessionID == sessionID && key.slideID == slideID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sortResponses(out)
	return out, nil
}

func sortResponses(rs []domain.Response) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
