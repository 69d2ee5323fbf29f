package app

import (
	"sync"
	"time"

	"liveclass-service/internal/domain"
)

// Session is the in-memory representation of a classroom: who is connected, which
// deck it uses and whether the teacher has started the lesson.
type Session struct {
	id          string
	deckID      string
	createdAt   time.Time
	now         func() time.Time
	mu          sync.RWMutex
	members     map[string]domain.Role
	lesson      domain.Lesson
	subscribers map[chan domain.Lesson]struct{}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id, deckID string) *Session {
	return NewSessionWithClock(id, deckID, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id, deckID string, now func() time.Time) *Session {
	return &Session{
		id:          id,
		deckID:      deckID,
		createdAt:   now(),
		now:         now,
		members:     make(map[string]domain.Role),
		lesson:      domain.Lesson{SessionID: id, UpdatedAt: now()},
		subscribers: make(map[chan domain.Lesson]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) DeckID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deckID
}

func (s *Session) join(userID string, role domain.Role) domain.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[userID] = role
	return s.lesson
}

func (s *Session) leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, userID)
}

func (s *Session) setStarted(started bool) domain.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lesson.Started == started {
		return s.lesson
	}
	s.lesson.Started = started
	s.lesson.UpdatedAt = s.now()
	s.broadcastLocked()
	return s.lesson
}

// Lesson returns the current lesson flag.
func (s *Session) Lesson() domain.Lesson {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lesson
}

// Members returns the number of connected users per role.
func (s *Session) Members() map[domain.Role]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Role]int)
	for _, role := range s.members {
		out[role]++
	}
	return out
}

// IsEmpty reports whether the session has no connected users.
func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members) == 0
}

func (s *Session) subscribe() (<-chan domain.Lesson, func()) {
	ch := make(chan domain.Lesson, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.lesson
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	for ch := range s.subscribers {
		select {
		case ch <- s.lesson:
		default:
			// Only the latest lesson state matters; drop the stale one.
			select {
			case <-ch:
			default:
			}
			ch <- s.lesson
		}
	}
}
