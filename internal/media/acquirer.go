package media

import (
	"context"
	"errors"
	"fmt"
	"log"

	"liveclass-service/internal/domain"
)

// ErrPermissionDenied is returned by a Capturer when the user refused access.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNoDevice is returned by a Capturer when no matching device exists.
var ErrNoDevice = errors.New("no capture device")

// VideoConstraints describe the preferred camera configuration.
type VideoConstraints struct {
	IdealWidth  int
	IdealHeight int
}

// AudioConstraints describe the preferred microphone configuration.
type AudioConstraints struct {
	EchoCancellation bool
}

// Constraints is a capture request. A nil member is not requested.
type Constraints struct {
	Video *VideoConstraints
	Audio *AudioConstraints
}

// PreferredConstraints is the first step of the fallback chain.
func PreferredConstraints() Constraints {
	return Constraints{
		Video: &VideoConstraints{IdealWidth: 1280, IdealHeight: 720},
		Audio: &AudioConstraints{EchoCancellation: true},
	}
}

// AudioOnlyConstraints is used when the camera cannot be opened.
func AudioOnlyConstraints() Constraints {
	return Constraints{Audio: &AudioConstraints{EchoCancellation: true}}
}

// Capturer is the platform device-capture API.
type Capturer interface {
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// DisplayMedia opens a screen capture. Its video track must fire
	// OnEnded when the user stops sharing from the OS.
	DisplayMedia(ctx context.Context) (*Stream, error)
}

// Acquirer obtains local tracks, degrading to audio-only when the camera is unavailable.
type Acquirer struct {
	capturer Capturer
}

func NewAcquirer(capturer Capturer) *Acquirer {
	return &Acquirer{capturer: capturer}
}

// Acquire walks the fallback chain. A camera failure must not block audio participation.
func (a *Acquirer) Acquire(ctx context.Context) (*Stream, error) {
	stream, videoErr := a.capturer.UserMedia(ctx, PreferredConstraints())
	if videoErr == nil {
		return stream, nil
	}
	log.Printf("camera+microphone unavailable, falling back to audio only: %v", videoErr)

	stream, audioErr := a.capturer.UserMedia(ctx, AudioOnlyConstraints())
	if audioErr == nil {
		return stream, nil
	}
	return nil, &domain.MediaAccessError{Video: videoErr, Audio: audioErr}
}

// AcquireDisplay opens a screen capture stream independent of the camera.
func (a *Acquirer) AcquireDisplay(ctx context.Context) (*Stream, error) {
	stream, err := a.capturer.DisplayMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("display capture: %w", err)
	}
	if len(stream.VideoTracks()) == 0 {
		stream.Stop()
		return nil, fmt.Errorf("display capture: %w", ErrNoDevice)
	}
	return stream, nil
}
