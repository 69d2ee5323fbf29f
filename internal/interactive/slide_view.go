package interactive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"liveclass-service/internal/domain"
)

// SlideView is one student's view of an interactive slide. Backend state is
// authoritative; the view keeps an optimistic copy and enforces at most one
// response and at most one submission in flight before any network call.
type SlideView struct {
	backend     Backend
	sessionID   string
	slide       domain.Slide
	studentID   string
	studentName string
	now         func() time.Time

	mu          sync.Mutex
	state       domain.SlideState
	activeSince time.Time
	responses   []domain.Response
	seen        map[string]struct{}
	mine        *domain.Response
	inFlight    map[string]bool
	unsubscribe []func()
}

func NewSlideView(backend Backend, sessionID string, slide domain.Slide, studentID, studentName string) *SlideView {
	return NewSlideViewWithClock(backend, sessionID, slide, studentID, studentName, time.Now)
}

// NewSlideViewWithClock is for deterministic response times in tests.
func NewSlideViewWithClock(backend Backend, sessionID string, slide domain.Slide, studentID, studentName string, now func() time.Time) *SlideView {
	return &SlideView{
		backend:     backend,
		sessionID:   sessionID,
		slide:       slide,
		studentID:   studentID,
		studentName: studentName,
		now:         now,
		state:       domain.SlideState{SessionID: sessionID, SlideID: slide.ID, Phase: domain.PhaseIdle},
		seen:        make(map[string]struct{}),
		inFlight:    make(map[string]bool),
	}
}

// Mount subscribes to live updates, then loads existing responses and restores the
// student's own answer if one exists. Subscribing first means nothing is missed in
// between; duplicates are dropped by id.
func (v *SlideView) Mount(ctx context.Context) error {
	unsubState, err := v.backend.SubscribeToSlideState(ctx, v.sessionID, v.slide.ID, v.ApplyState)
	if err != nil {
		return err
	}
	unsubResponses, err := v.backend.SubscribeToResponses(ctx, v.sessionID, v.slide.ID, v.ApplyResponse)
	if err != nil {
		unsubState()
		return err
	}
	v.mu.Lock()
	v.unsubscribe = append(v.unsubscribe, unsubState, unsubResponses)
	v.mu.Unlock()

	state, err := v.backend.SlideState(ctx, v.sessionID, v.slide.ID)
	if err != nil {
		v.Unmount()
		return err
	}
	v.ApplyState(state)

	return v.Reload(ctx)
}

// Reload merges the backend's full response set into the view.
func (v *SlideView) Reload(ctx context.Context) error {
	existing, err := v.backend.GetResponsesForSlide(ctx, v.sessionID, v.slide.ID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range existing {
		v.addLocked(r)
	}
	return nil
}

// Unmount drops every subscription. It is safe to call more than once.
func (v *SlideView) Unmount() {
	v.mu.Lock()
	unsubs := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// ApplyState applies a teacher-driven phase broadcast.
func (v *SlideView) ApplyState(state domain.SlideState) {
	if state.SessionID != v.sessionID || state.SlideID != v.slide.ID {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if state.Active() && !v.state.Active() {
		v.activeSince = v.now()
	}
	v.state = state
}

// ApplyResponse appends a response not seen before.
func (v *SlideView) ApplyResponse(r domain.Response) {
	if r.SessionID != v.sessionID || r.SlideID != v.slide.ID {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.addLocked(r)
}

// Submit records the student's answer. Correctness is fixed here, from the option as
// it is right now, and never recomputed.
func (v *SlideView) Submit(ctx context.Context, optionID string) (domain.Response, error) {
	v.mu.Lock()
	if v.mine != nil {
		v.mu.Unlock()
		return domain.Response{}, &domain.DuplicateResponseError{SessionID: v.sessionID, SlideID: v.slide.ID, StudentID: v.studentID}
	}
	if !v.state.Active() {
		v.mu.Unlock()
		return domain.Response{}, domain.ErrSlideNotActive
	}
	key := v.flightKey()
	if v.inFlight[key] {
		v.mu.Unlock()
		return domain.Response{}, domain.ErrSubmissionInFlight
	}
	opt, ok := v.slide.Option(optionID)
	if !ok {
		v.mu.Unlock()
		return domain.Response{}, domain.ErrOptionNotFound
	}
	v.inFlight[key] = true

	sub := domain.Submission{
		SessionID:      v.sessionID,
		SlideID:        v.slide.ID,
		StudentID:      v.studentID,
		StudentName:    v.studentName,
		OptionID:       optionID,
		ResponseTimeMs: v.now().Sub(v.activeSince).Milliseconds(),
	}
	if v.slide.Kind == domain.SlideQuiz {
		correct := opt.IsCorrect
		sub.IsCorrect = &correct
	}
	v.mu.Unlock()

	resp, err := v.backend.SubmitResponse(ctx, sub)

	v.mu.Lock()
	delete(v.inFlight, key)
	v.mu.Unlock()

	if err != nil {
		if errors.Is(err, domain.ErrDuplicateResponse) {
			// Another tab or an earlier session won; show what the backend holds.
			_ = v.Reload(ctx)
		}
		return domain.Response{}, err
	}
	if resp == nil {
		return domain.Response{}, domain.ErrResponseRejected
	}

	v.mu.Lock()
	v.addLocked(*resp)
	v.mu.Unlock()
	return *resp, nil
}

func (v *SlideView) State() domain.SlideState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *SlideView) HasResponded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mine != nil
}

// MyResponse returns the student's recorded response.
func (v *SlideView) MyResponse() (domain.Response, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mine == nil {
		return domain.Response{}, false
	}
	return *v.mine, true
}

// Submitting reports whether a submission is awaiting the backend.
func (v *SlideView) Submitting() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inFlight[v.flightKey()]
}

// Responses returns the known responses ordered by creation time.
func (v *SlideView) Responses() []domain.Response {
	v.mu.Lock()
	out := make([]domain.Response, len(v.responses))
	copy(out, v.responses)
	v.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return earlier(out[i], out[j]) })
	return out
}

// Distribution is recomputed from the full response set on every call. Options
// without votes are reported as zero.
func (v *SlideView) Distribution() domain.VoteDistribution {
	dist := Tally(v.Responses())
	for _, opt := range v.slide.Options {
		if _, ok := dist[opt.ID]; !ok {
			dist[opt.ID] = 0
		}
	}
	return dist
}

func (v *SlideView) Results() domain.SlideResults {
	return Summarize(v.sessionID, v.slide.ID, v.Responses())
}

func (v *SlideView) addLocked(r domain.Response) {
	if _, ok := v.seen[r.ID]; ok {
		return
	}
	v.seen[r.ID] = struct{}{}
	v.responses = append(v.responses, r)
	if r.StudentID == v.studentID && (v.mine == nil || earlier(r, *v.mine)) {
		mine := r
		v.mine = &mine
	}
}

func (v *SlideView) flightKey() string {
	return v.sessionID + "/" + v.slide.ID + "/" + v.studentID
}
