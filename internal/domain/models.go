package domain

import "time"

// Role distinguishes the two kinds of classroom members.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Counterpart returns the role a client of role r waits for.
func (r Role) Counterpart() Role {
	if r == RoleTeacher {
		return RoleStudent
	}
	return RoleTeacher
}

// ConnectionStatus is the lifecycle of a conference session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ConnectionQuality is the backend's estimate of link health.
type ConnectionQuality string

const (
	QualityUnknown ConnectionQuality = "unknown"
	QualityGood    ConnectionQuality = "good"
	QualityFair    ConnectionQuality = "fair"
	QualityPoor    ConnectionQuality = "poor"
)

// Participant is a member of a live classroom session.
type Participant struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	IsMuted      bool      `json:"isMuted"`
	IsCameraOff  bool      `json:"isCameraOff"`
	IsHandRaised bool      `json:"isHandRaised"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// SessionState is a read-only snapshot of one conference session.
type SessionState struct {
	RoomName      string            `json:"roomName"`
	Participants  []Participant     `json:"participants"`
	Status        ConnectionStatus  `json:"status"`
	Recording     bool              `json:"recording"`
	ScreenSharing bool              `json:"screenSharing"`
	Quality       ConnectionQuality `json:"quality"`
}

// SlideKind tells quizzes (graded) apart from polls (ungraded).
type SlideKind string

const (
	SlideQuiz SlideKind = "quiz"
	SlidePoll SlideKind = "poll"
)

// Option represents a possible answer for an interactive slide.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Slide is one interactive question of a lesson deck.
type Slide struct {
	ID      string    `json:"id"`
	Kind    SlideKind `json:"kind"`
	Prompt  string    `json:"prompt"`
	Options []Option  `json:"options"`
}

// Option returns the option with the given id.
func (s Slide) Option(id string) (Option, bool) {
	for _, opt := range s.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Deck is the ordered set of interactive slides used in a lesson.
type Deck struct {
	ID     string  `json:"id"`
	Slides []Slide `json:"slides"`
}

// Slide returns the slide with the given id.
func (d Deck) Slide(id string) (Slide, bool) {
	for _, s := range d.Slides {
		if s.ID == id {
			return s, true
		}
	}
	return Slide{}, false
}

// SlidePhase is the teacher-controlled stage of an interactive slide.
type SlidePhase string

const (
	PhaseIdle     SlidePhase = "idle"
	PhaseActive   SlidePhase = "active"
	PhaseLocked   SlidePhase = "locked"
	PhaseRevealed SlidePhase = "revealed"
)

// SlideState is the broadcast phase of one slide in one session.
type SlideState struct {
	SessionID string     `json:"sessionId"`
	SlideID   string     `json:"slideId"`
	Phase     SlidePhase `json:"phase"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Active reports whether the slide accepts responses.
func (s SlideState) Active() bool { return s.Phase == PhaseActive }

// Locked reports whether input is disabled.
func (s SlideState) Locked() bool { return s.Phase == PhaseLocked || s.Phase == PhaseRevealed }

// RevealAnswer reports whether correctness is shown.
func (s SlideState) RevealAnswer() bool { return s.Phase == PhaseRevealed }

// Submission is a student's request to record an answer or vote.
type Submission struct {
	SessionID      string `json:"sessionId"`
	SlideID        string `json:"slideId"`
	StudentID      string `json:"studentId"`
	StudentName    string `json:"studentName"`
	OptionID       string `json:"optionId"`
	IsCorrect      *bool  `json:"isCorrect,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

// Response is an accepted submission. It is never edited once stored.
type Response struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	SlideID        string    `json:"slideId"`
	StudentID      string    `json:"studentId"`
	StudentName    string    `json:"studentName"`
	OptionID       string    `json:"optionId"`
	IsCorrect      *bool     `json:"isCorrect,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// VoteDistribution maps option id to the number of responses choosing it.
type VoteDistribution map[string]int

// SlideResults summarizes the responses of one slide.
type SlideResults struct {
	SessionID    string           `json:"sessionId"`
	SlideID      string           `json:"slideId"`
	Total        int              `json:"total"`
	Correct      int              `json:"correct"`
	Distribution VoteDistribution `json:"distribution"`
}

// Lesson tracks whether the teacher has started the session.
type Lesson struct {
	SessionID string    `json:"sessionId"`
	Started   bool      `json:"started"`
	UpdatedAt time.Time `json:"updatedAt"`
}
