package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/interactive"
)

// InteractiveService is the authority for slide phases and responses. It satisfies
// interactive.Backend so student views can run in-process against it.
type InteractiveService struct {
	sessions  SessionRepository
	decks     DeckRepository
	responses ResponseStore
	states    SlideStateStore
	feed      Feed
	now       func() time.Time

	// Serializes read-modify-write phase changes within this process.
	transitionMu sync.Mutex
}

var _ interactive.Backend = (*InteractiveService)(nil)

func NewInteractiveService(sessions SessionRepository, decks DeckRepository, responses ResponseStore, states SlideStateStore, feed Feed) *InteractiveService {
	return NewInteractiveServiceWithClock(sessions, decks, responses, states, feed, time.Now)
}

// NewInteractiveServiceWithClock is test-only for deterministic timestamps.
func NewInteractiveServiceWithClock(sessions SessionRepository, decks DeckRepository, responses ResponseStore, states SlideStateStore, feed Feed, now func() time.Time) *InteractiveService {
	return &InteractiveService{
		sessions:  sessions,
		decks:     decks,
		responses: responses,
		states:    states,
		feed:      feed,
		now:       now,
	}
}

// OpenSession binds a session to a deck, or returns the existing session.
func (s *InteractiveService) OpenSession(ctx context.Context, sessionID, deckID string) (*Session, error) {
	// Sessions cannot be opened for unknown decks.
	if _, err := s.decks.GetDeck(ctx, deckID); err != nil {
		return nil, err
	}
	return s.sessions.GetOrCreate(sessionID, deckID), nil
}

// Deck returns the deck a session runs.
func (s *InteractiveService) Deck(ctx context.Context, sessionID string) (domain.Deck, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Deck{}, domain.ErrSessionNotFound
	}
	return s.decks.GetDeck(ctx, session.DeckID())
}

// Activate opens a slide for responses. Allowed from idle or locked.
func (s *InteractiveService) Activate(ctx context.Context, sessionID, slideID string, role domain.Role) (domain.SlideState, error) {
	return s.transition(ctx, sessionID, slideID, role, domain.PhaseActive, domain.PhaseIdle, domain.PhaseLocked)
}

// Lock stops accepting responses without revealing the answer.
func (s *InteractiveService) Lock(ctx context.Context, sessionID, slideID string, role domain.Role) (domain.SlideState, error) {
	return s.transition(ctx, sessionID, slideID, role, domain.PhaseLocked, domain.PhaseActive)
}

// Reveal closes the slide and shows the answer.
func (s *InteractiveService) Reveal(ctx context.Context, sessionID, slideID string, role domain.Role) (domain.SlideState, error) {
	return s.transition(ctx, sessionID, slideID, role, domain.PhaseRevealed, domain.PhaseActive, domain.PhaseLocked)
}

// Reset returns a revealed slide to idle. Recorded responses are kept.
func (s *InteractiveService) Reset(ctx context.Context, sessionID, slideID string, role domain.Role) (domain.SlideState, error) {
	return s.transition(ctx, sessionID, slideID, role, domain.PhaseIdle, domain.PhaseRevealed)
}

func (s *InteractiveService) transition(ctx context.Context, sessionID, slideID string, role domain.Role, to domain.SlidePhase, from ...domain.SlidePhase) (domain.SlideState, error) {
	if role != domain.RoleTeacher {
		return domain.SlideState{}, domain.ErrNotTeacher
	}
	if _, err := s.slide(ctx, sessionID, slideID); err != nil {
		return domain.SlideState{}, err
	}

	s.transitionMu.Lock()
	current, err := s.states.GetSlideState(ctx, sessionID, slideID)
	if err != nil {
		s.transitionMu.Unlock()
		return domain.SlideState{}, err
	}
	if current.Phase == to {
		s.transitionMu.Unlock()
		return current, nil
	}
	if !phaseIn(current.Phase, from) {
		s.transitionMu.Unlock()
		return current, domain.ErrInvalidTransition
	}
	next := domain.SlideState{SessionID: sessionID, SlideID: slideID, Phase: to, UpdatedAt: s.now()}
	err = s.states.SetSlideState(ctx, next)
	s.transitionMu.Unlock()
	if err != nil {
		return domain.SlideState{}, err
	}

	s.publish(ctx, SlideTopic(sessionID, slideID), FeedEvent{State: &next})
	return next, nil
}

// SubmitResponse records a student's first answer for an active slide. Correctness
// is taken from the deck at submission time and stored with the response.
func (s *InteractiveService) SubmitResponse(ctx context.Context, sub domain.Submission) (*domain.Response, error) {
	slide, err := s.slide(ctx, sub.SessionID, sub.SlideID)
	if err != nil {
		return nil, err
	}
	state, err := s.states.GetSlideState(ctx, sub.SessionID, sub.SlideID)
	if err != nil {
		return nil, err
	}
	if !state.Active() {
		return nil, domain.ErrSlideNotActive
	}
	opt, ok := slide.Option(sub.OptionID)
	if !ok {
		return nil, domain.ErrOptionNotFound
	}
	if sub.StudentID == "" {
		return nil, domain.ErrResponseRejected
	}

	resp := domain.Response{
		ID:             uuid.NewString(),
		SessionID:      sub.SessionID,
		SlideID:        sub.SlideID,
		StudentID:      sub.StudentID,
		StudentName:    sub.StudentName,
		OptionID:       sub.OptionID,
		ResponseTimeMs: sub.ResponseTimeMs,
		CreatedAt:      s.now(),
	}
	if resp.ResponseTimeMs < 0 {
		resp.ResponseTimeMs = 0
	}
	if slide.Kind == domain.SlideQuiz {
		correct := opt.IsCorrect
		resp.IsCorrect = &correct
	}

	stored, err := s.responses.InsertResponse(ctx, resp)
	if err != nil {
		return nil, err
	}
	if !stored {
		return nil, &domain.DuplicateResponseError{SessionID: sub.SessionID, SlideID: sub.SlideID, StudentID: sub.StudentID}
	}

	s.publish(ctx, SlideTopic(sub.SessionID, sub.SlideID), FeedEvent{Response: &resp})
	return &resp, nil
}

func (s *InteractiveService) GetResponsesForSlide(ctx context.Context, sessionID, slideID string) ([]domain.Response, error) {
	return s.responses.ListResponses(ctx, sessionID, slideID)
}

func (s *InteractiveService) SlideState(ctx context.Context, sessionID, slideID string) (domain.SlideState, error) {
	return s.states.GetSlideState(ctx, sessionID, slideID)
}

// Results summarizes the recorded responses of a slide.
func (s *InteractiveService) Results(ctx context.Context, sessionID, slideID string) (domain.SlideResults, error) {
	responses, err := s.responses.ListResponses(ctx, sessionID, slideID)
	if err != nil {
		return domain.SlideResults{}, err
	}
	return interactive.Summarize(sessionID, slideID, responses), nil
}

// SubscribeToResponses delivers every new response of a slide to onResponse. After a
// feed overflow the full response set is replayed, so receivers must dedupe by id.
// The returned function must not be called from inside onResponse.
func (s *InteractiveService) SubscribeToResponses(ctx context.Context, sessionID, slideID string, onResponse func(domain.Response)) (func(), error) {
	handle := func(ev FeedEvent) {
		if ev.Response != nil {
			onResponse(*ev.Response)
		}
	}
	resync := func(ctx context.Context) {
		responses, err := s.responses.ListResponses(ctx, sessionID, slideID)
		if err != nil {
			log.Printf("resync responses %s/%s: %v", sessionID, slideID, err)
			return
		}
		for _, r := range responses {
			onResponse(r)
		}
	}
	return s.follow(ctx, SlideTopic(sessionID, slideID), handle, resync)
}

// SubscribeToSlideState delivers phase changes of a slide to onState.
func (s *InteractiveService) SubscribeToSlideState(ctx context.Context, sessionID, slideID string, onState func(domain.SlideState)) (func(), error) {
	handle := func(ev FeedEvent) {
		if ev.State != nil {
			onState(*ev.State)
		}
	}
	resync := func(ctx context.Context) {
		state, err := s.states.GetSlideState(ctx, sessionID, slideID)
		if err != nil {
			log.Printf("resync slide state %s/%s: %v", sessionID, slideID, err)
			return
		}
		onState(state)
	}
	return s.follow(ctx, SlideTopic(sessionID, slideID), handle, resync)
}

func (s *InteractiveService) follow(ctx context.Context, topic string, handle func(FeedEvent), resync func(context.Context)) (func(), error) {
	ch, cancel, err := s.feed.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { cancel() }()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-ch:
				if ok {
					handle(ev)
					continue
				}
				select {
				case <-stop:
					return
				default:
				}
				log.Printf("feed %s: subscriber fell behind, resyncing", topic)
				cancel()
				next, nextCancel, err := s.feed.Subscribe(context.Background(), topic)
				if err != nil {
					log.Printf("feed %s: resubscribe: %v", topic, err)
					return
				}
				ch, cancel = next, nextCancel
				resync(context.Background())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}, nil
}

func (s *InteractiveService) publish(ctx context.Context, topic string, ev FeedEvent) {
	// The store already holds the change; subscribers that miss it catch up on resync.
	if err := s.feed.Publish(ctx, topic, ev); err != nil {
		log.Printf("publish %s: %v", topic, err)
	}
}

func (s *InteractiveService) slide(ctx context.Context, sessionID, slideID string) (domain.Slide, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Slide{}, domain.ErrSessionNotFound
	}
	deck, err := s.decks.GetDeck(ctx, session.DeckID())
	if err != nil {
		return domain.Slide{}, err
	}
	slide, ok := deck.Slide(slideID)
	if !ok {
		return domain.Slide{}, domain.ErrSlideNotFound
	}
	return slide, nil
}

func phaseIn(p domain.SlidePhase, set []domain.SlidePhase) bool {
	for _, candidate := range set {
		if p == candidate {
			return true
		}
	}
	return false
}
