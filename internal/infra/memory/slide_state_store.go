package memory

import (
	"context"
	"sync"

	"liveclass-service/internal/domain"
)

// SlideStateStore keeps slide phases in process memory.
type SlideStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.SlideState
}

func NewSlideStateStore() *SlideStateStore {
	return &SlideStateStore{states: make(map[string]domain.SlideState)}
}

func (s *SlideStateStore) GetSlideState(_ context.Context, sessionID, slideID string) (domain.SlideState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.states[sessionID+"/"+slideID]; ok {
		return state, nil
	}
	return domain.SlideState{SessionID: sessionID, SlideID: slideID, Phase: domain.PhaseIdle}, nil
}

func (s *SlideStateStore) SetSlideState(_ context.Context, state domain.SlideState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID+"/"+state.SlideID] = state
	return nil
}
