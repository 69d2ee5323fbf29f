package media

import (
	"sync"

	"github.com/google/uuid"
)

// Kind identifies what a track carries.
type Kind string

const (
	KindAudio  Kind = "audio"
	KindVideo  Kind = "video"
	KindScreen Kind = "screen"
)

// Track is a single captured media source. Tracks hold OS-level devices,
// so every track handed out must eventually be stopped.
type Track interface {
	ID() string
	Kind() Kind
	Label() string
	Enabled() bool
	SetEnabled(enabled bool)
	Live() bool
	// Stop releases the device. It does not fire ended handlers.
	Stop()
	// OnEnded registers a handler invoked when the source ends on its own
	// (device unplugged, OS-level "stop sharing"). If the source already ended,
	// fn runs immediately.
	OnEnded(fn func())
}

// LocalTrack is an in-process Track implementation.
type LocalTrack struct {
	id    string
	kind  Kind
	label string

	mu      sync.Mutex
	enabled bool
	live    bool
	ended   bool
	onEnded []func()
}

// NewLocalTrack returns a live, enabled track.
func NewLocalTrack(kind Kind, label string) *LocalTrack {
	return &LocalTrack{
		id:      uuid.NewString(),
		kind:    kind,
		label:   label,
		enabled: true,
		live:    true,
	}
}

func (t *LocalTrack) ID() string    { return t.id }
func (t *LocalTrack) Kind() Kind    { return t.kind }
func (t *LocalTrack) Label() string { return t.label }

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *LocalTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
}

func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// End simulates the source ending outside the application's control.
// Handlers run once, after the track is stopped.
func (t *LocalTrack) End() {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.ended = true
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
