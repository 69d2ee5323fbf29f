package app

import (
	"context"

	"liveclass-service/internal/domain"
)

// LessonService tracks who is in a classroom and whether the lesson has started.
type LessonService struct {
	sessions SessionRepository
}

func NewLessonService(sessions SessionRepository) *LessonService {
	return &LessonService{sessions: sessions}
}

// Join registers a connected user and returns the current lesson state.
func (s *LessonService) Join(_ context.Context, sessionID, userID string, role domain.Role) (domain.Lesson, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Lesson{}, domain.ErrSessionNotFound
	}
	return session.join(userID, role), nil
}

// Leave removes a user from the session and drops the session if empty.
func (s *LessonService) Leave(_ context.Context, sessionID, userID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.leave(userID)
	if session.IsEmpty() {
		s.sessions.DeleteIfEmpty(sessionID)
	}
}

// StartLesson marks the lesson started. Teachers only.
func (s *LessonService) StartLesson(_ context.Context, sessionID string, role domain.Role) (domain.Lesson, error) {
	return s.setStarted(sessionID, role, true)
}

// PauseLesson returns the lesson to the not-started state, which re-arms presence checks.
func (s *LessonService) PauseLesson(_ context.Context, sessionID string, role domain.Role) (domain.Lesson, error) {
	return s.setStarted(sessionID, role, false)
}

// Lesson returns the current lesson state of a session.
func (s *LessonService) Lesson(_ context.Context, sessionID string) (domain.Lesson, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Lesson{}, domain.ErrSessionNotFound
	}
	return session.Lesson(), nil
}

// Subscribe returns a channel that receives lesson updates for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LessonService) Subscribe(_ context.Context, sessionID string) (<-chan domain.Lesson, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

func (s *LessonService) setStarted(sessionID string, role domain.Role, started bool) (domain.Lesson, error) {
	if role != domain.RoleTeacher {
		return domain.Lesson{}, domain.ErrNotTeacher
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Lesson{}, domain.ErrSessionNotFound
	}
	return session.setStarted(started), nil
}
