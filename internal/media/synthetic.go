package media

import (
	"context"
	"sync"
)

// SyntheticCapturer produces in-process tracks. The headless client and tests use it
// in place of a platform capture API; the deny flags model permission prompts.
type SyntheticCapturer struct {
	DenyVideo   bool
	DenyAudio   bool
	DenyDisplay bool

	mu       sync.Mutex
	requests []Constraints
	displays []*LocalTrack
}

func (c *SyntheticCapturer) UserMedia(ctx context.Context, req Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if req.Video != nil && c.DenyVideo {
		return nil, ErrPermissionDenied
	}
	if req.Audio != nil && c.DenyAudio {
		return nil, ErrPermissionDenied
	}

	var tracks []Track
	if req.Audio != nil {
		tracks = append(tracks, NewLocalTrack(KindAudio, "synthetic microphone"))
	}
	if req.Video != nil {
		tracks = append(tracks, NewLocalTrack(KindVideo, "synthetic camera"))
	}
	if len(tracks) == 0 {
		return nil, ErrNoDevice
	}
	return NewStream(tracks...), nil
}

func (c *SyntheticCapturer) DisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.DenyDisplay {
		return nil, ErrPermissionDenied
	}
	track := NewLocalTrack(KindScreen, "synthetic display")
	c.mu.Lock()
	c.displays = append(c.displays, track)
	c.mu.Unlock()
	return NewStream(track), nil
}

// Requests returns the constraints of every UserMedia call, in order.
func (c *SyntheticCapturer) Requests() []Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Constraints, len(c.requests))
	copy(out, c.requests)
	return out
}

// EndDisplay ends the most recent display capture as if the user pressed
// the OS-level "stop sharing" button.
func (c *SyntheticCapturer) EndDisplay() {
	c.mu.Lock()
	if len(c.displays) == 0 {
		c.mu.Unlock()
		return
	}
	track := c.displays[len(c.displays)-1]
	c.mu.Unlock()
	track.End()
}
