package conference

import (
	"context"
	"sync"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/media"
)

// LocalBackend is the local-only variant: no remote peers, commands are
// acknowledged with the status events a real backend would send for self.
type LocalBackend struct {
	events chan Event

	mu         sync.Mutex
	initDone   bool
	connected  bool
	self       JoinOptions
	muted      bool
	videoOff   bool
	handRaised bool
	recording  bool
	sharing    bool
}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{events: make(chan Event, eventBuffer)}
}

func (b *LocalBackend) Kind() string { return KindLocal }

func (b *LocalBackend) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.initDone = true
	b.mu.Unlock()
	return nil
}

func (b *LocalBackend) Join(ctx context.Context, opts JoinOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if !b.initDone {
		b.mu.Unlock()
		return domain.ErrNotInitialized
	}
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = true
	b.self = opts
	b.muted = opts.StartAudioMuted
	b.videoOff = opts.StartVideoMuted
	b.handRaised, b.recording, b.sharing = false, false, false
	b.mu.Unlock()

	emit(b.events, Event{Type: EventConferenceJoined, ID: opts.ParticipantID})
	emit(b.events, Event{Type: EventParticipantJoined, ID: opts.ParticipantID, DisplayName: opts.DisplayName, Role: opts.Role})
	return nil
}

func (b *LocalBackend) Leave(_ context.Context) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	id := b.self.ParticipantID
	b.mu.Unlock()

	emit(b.events, Event{Type: EventConferenceLeft, ID: id})
	return nil
}

func (b *LocalBackend) ExecuteCommand(_ context.Context, cmd Command, _ ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	id := b.self.ParticipantID
	switch cmd {
	case CmdToggleAudio:
		b.muted = !b.muted
		emit(b.events, Event{Type: EventAudioMuteStatusChanged, ID: id, Muted: b.muted})
	case CmdToggleVideo:
		b.videoOff = !b.videoOff
		emit(b.events, Event{Type: EventVideoMuteStatusChanged, ID: id, Muted: b.videoOff})
	case CmdToggleRaiseHand:
		b.handRaised = !b.handRaised
		emit(b.events, Event{Type: EventRaiseHandUpdated, ID: id, HandRaised: b.handRaised})
	case CmdToggleShareScreen:
		b.sharing = !b.sharing
		emit(b.events, Event{Type: EventScreenSharingStatusChanged, ID: id, On: b.sharing})
	case CmdStartRecording:
		b.recording = true
		emit(b.events, Event{Type: EventRecordingStatusChanged, On: true})
	case CmdStopRecording:
		b.recording = false
		emit(b.events, Event{Type: EventRecordingStatusChanged, On: false})
	default:
		return &UnknownCommandError{Command: cmd}
	}
	return nil
}

func (b *LocalBackend) Events() <-chan Event { return b.events }

// RemoteStreams is always empty: a local-only session has no peers.
func (b *LocalBackend) RemoteStreams() []*media.Stream { return nil }

func (b *LocalBackend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// UnknownCommandError is returned for commands a backend does not understand.
type UnknownCommandError struct {
	Command Command
}

func (e *UnknownCommandError) Error() string {
	return "unknown conference command " + string(e.Command)
}
