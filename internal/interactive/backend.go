package interactive

import (
	"context"

	"liveclass-service/internal/domain"
)

// Backend is the interactive-content store as seen by a classroom client. The
// server implementation is app.InteractiveService.
type Backend interface {
	GetResponsesForSlide(ctx context.Context, sessionID, slideID string) ([]domain.Response, error)
	// SubmitResponse returns nil without error when the backend declines quietly.
	SubmitResponse(ctx context.Context, sub domain.Submission) (*domain.Response, error)
	// SubscribeToResponses delivers each new response at least once.
	SubscribeToResponses(ctx context.Context, sessionID, slideID string, onResponse func(domain.Response)) (func(), error)
	SlideState(ctx context.Context, sessionID, slideID string) (domain.SlideState, error)
	SubscribeToSlideState(ctx context.Context, sessionID, slideID string, onState func(domain.SlideState)) (func(), error)
}
