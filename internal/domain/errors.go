package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a classroom session has not been opened.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDeckNotFound indicates the lesson deck could not be loaded.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrSlideNotFound indicates a slide ID is not part of the session's deck.
	ErrSlideNotFound = errors.New("slide not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrSlideNotActive is returned when a slide is not accepting responses.
	ErrSlideNotActive = errors.New("slide is not accepting responses")
	// ErrSubmissionInFlight is returned while a previous submission is still pending.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrDuplicateResponse is returned when a student already has a response for a slide.
	ErrDuplicateResponse = errors.New("response already recorded")
	// ErrResponseRejected is returned when the backend declined a submission without a reason.
	ErrResponseRejected = errors.New("response rejected")
	// ErrInvalidTransition is returned for a phase change the slide cannot make.
	ErrInvalidTransition = errors.New("invalid slide phase transition")
	// ErrNotTeacher is returned when a student issues a teacher-only action.
	ErrNotTeacher = errors.New("action requires teacher role")
	// ErrNotInitialized is returned when a session is used before Initialize succeeds.
	ErrNotInitialized = errors.New("media session not initialized")
	// ErrCapabilityDisabled marks recording or screen share attempts the session was not configured for.
	ErrCapabilityDisabled = errors.New("capability disabled")
)

// InitializationError means the conferencing SDK or local media could not be prepared.
// Calling Initialize again retries.
type InitializationError struct {
	Stage string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// MediaAccessError means neither camera+microphone nor microphone alone could be opened.
type MediaAccessError struct {
	Video error
	Audio error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("media access denied: video: %v; audio: %v", e.Video, e.Audio)
}

func (e *MediaAccessError) Unwrap() []error {
	return []error{e.Video, e.Audio}
}

// JoinError means the conferencing backend rejected or timed out a join.
type JoinError struct {
	Room string
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join room %q: %v", e.Room, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// DuplicateResponseError is returned when a student submits twice for the same slide.
type DuplicateResponseError struct {
	SessionID string
	SlideID   string
	StudentID string
}

func (e *DuplicateResponseError) Error() string {
	return fmt.Sprintf("student %s already responded to slide %s in session %s", e.StudentID, e.SlideID, e.SessionID)
}

func (e *DuplicateResponseError) Is(target error) bool {
	return target == ErrDuplicateResponse
}
