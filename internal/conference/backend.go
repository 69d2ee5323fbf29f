package conference

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/media"
)

// ErrNotConnected is returned by ExecuteCommand when no session is open.
// Callers treat it as local-only mode.
var ErrNotConnected = errors.New("conference backend not connected")

// Command is a control message understood by every backend.
type Command string

const (
	CmdToggleAudio       Command = "toggleAudio"
	CmdToggleVideo       Command = "toggleVideo"
	CmdToggleShareScreen Command = "toggleShareScreen"
	CmdToggleRaiseHand   Command = "toggleRaiseHand"
	CmdStartRecording    Command = "startRecording"
	CmdStopRecording     Command = "stopRecording"
)

// JoinOptions configure a conference session.
type JoinOptions struct {
	RoomName           string      `json:"roomName"`
	DisplayName        string      `json:"displayName"`
	ParticipantID      string      `json:"participantId"`
	Role               domain.Role `json:"role"`
	MaxParticipants    int         `json:"maxParticipants,omitempty"`
	RecordingEnabled   bool        `json:"recordingEnabled,omitempty"`
	ScreenShareEnabled bool        `json:"screenShareEnabled,omitempty"`
	StartAudioMuted    bool        `json:"startAudioMuted,omitempty"`
	StartVideoMuted    bool        `json:"startVideoMuted,omitempty"`
}

// Backend is the uniform contract over a video-conferencing SDK.
// Callers depend on this interface only; variants are picked by New.
type Backend interface {
	Kind() string
	Initialize(ctx context.Context) error
	Join(ctx context.Context, opts JoinOptions) error
	Leave(ctx context.Context) error
	ExecuteCommand(ctx context.Context, cmd Command, args ...any) error
	// Events delivers backend notifications in order. The channel is never closed.
	Events() <-chan Event
	RemoteStreams() []*media.Stream
	Connected() bool
}

const (
	KindLocal     = "local"
	KindWebSocket = "websocket"
)

// Settings select and configure a backend variant.
type Settings struct {
	Kind   string
	URL    string
	SDKURL string
	Loader Loader
	Dialer *websocket.Dialer
}

// New constructs the backend variant named by s.Kind.
func New(s Settings) (Backend, error) {
	switch s.Kind {
	case "", KindLocal:
		return NewLocalBackend(), nil
	case KindWebSocket:
		if s.URL == "" {
			return nil, fmt.Errorf("conference backend %q: url not configured", s.Kind)
		}
		loader := s.Loader
		if loader == nil && s.SDKURL != "" {
			loader = NewHTTPLoader(http.DefaultClient, s.SDKURL)
		}
		return NewSignalBackend(s.URL, loader, s.Dialer), nil
	default:
		return nil, fmt.Errorf("unknown conference backend %q", s.Kind)
	}
}
