package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/app"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Notes:
//   - It keeps a local in-memory map of sessions to reuse the in-process lesson
//     broadcast and member tracking.
//   - Redis holds a liveness key per session whose value is the deck ID, so another
//     instance can serve a session it did not open.
//   - Every instance serving a session is listed in a set next to the liveness key;
//     the key goes away only when the last instance lets go.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

// releaseScript drops an instance and deletes the liveness key once no instance is left.
var releaseScript = redis.NewScript(`
redis.call("SREM", KEYS[2], ARGV[1])
if redis.call("SCARD", KEYS[2]) == 0 then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		instance: uuid.NewString(),
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(sessionID, deckID string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session
	}
	session := app.NewSession(sessionID, deckID)
	s.sessions[sessionID] = session
	// best-effort liveness marker
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(sessionID), deckID, s.ttl)
	s.register(ctx, pipe, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("mark session %s live: %v", sessionID, err)
	}
	return session
}

// Get returns the local session, adopting one opened elsewhere if Redis knows it.
func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return session, true
	}

	ctx := context.Background()
	deckID, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("lookup session %s: %v", sessionID, err)
		}
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session, true
	}
	session = app.NewSession(sessionID, deckID)
	s.sessions[sessionID] = session
	pipe := s.client.TxPipeline()
	s.register(ctx, pipe, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("register instance for session %s: %v", sessionID, err)
	}
	return session, true
}

// DeleteIfEmpty forgets an empty local session. The shared liveness key stays while
// any other instance still serves the session.
func (s *SessionStore) DeleteIfEmpty(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsEmpty() {
		return
	}
	delete(s.sessions, sessionID)
	keys := []string{s.key(sessionID), s.instancesKey(sessionID)}
	if err := releaseScript.Run(context.Background(), s.client, keys, s.instance).Err(); err != nil {
		log.Printf("release session %s: %v", sessionID, err)
	}
}

func (s *SessionStore) register(ctx context.Context, pipe redis.Pipeliner, sessionID string) {
	pipe.SAdd(ctx, s.instancesKey(sessionID), s.instance)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.instancesKey(sessionID), s.ttl)
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "classroom:session:" + sessionID
}

func (s *SessionStore) instancesKey(sessionID string) string {
	return "classroom:session:" + sessionID + ":instances"
}
