package conference

import (
	"log"

	"liveclass-service/internal/domain"
)

// EventType names a backend notification.
type EventType string

const (
	EventParticipantJoined          EventType = "participantJoined"
	EventParticipantLeft            EventType = "participantLeft"
	EventAudioMuteStatusChanged     EventType = "audioMuteStatusChanged"
	EventVideoMuteStatusChanged     EventType = "videoMuteStatusChanged"
	EventRaiseHandUpdated           EventType = "raiseHandUpdated"
	EventRecordingStatusChanged     EventType = "recordingStatusChanged"
	EventScreenSharingStatusChanged EventType = "screenSharingStatusChanged"
	EventConferenceJoined           EventType = "videoConferenceJoined"
	EventConferenceLeft             EventType = "videoConferenceLeft"
	EventConnectionQualityChanged   EventType = "connectionQualityChanged"
)

// Event is a single backend notification. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType                `json:"type"`
	ID          string                   `json:"id,omitempty"`
	DisplayName string                   `json:"displayName,omitempty"`
	Role        domain.Role              `json:"role,omitempty"`
	Muted       bool                     `json:"muted,omitempty"`
	HandRaised  bool                     `json:"handRaised,omitempty"`
	On          bool                     `json:"on,omitempty"`
	Quality     domain.ConnectionQuality `json:"quality,omitempty"`
}

// Frame is the JSON envelope exchanged with a conferencing relay.
type Frame struct {
	Type    string  `json:"type"`
	Command Command `json:"command,omitempty"`
	Args    []any   `json:"args,omitempty"`
	Event   *Event  `json:"event,omitempty"`
}

const (
	FrameCommand = "command"
	FrameEvent   = "event"
	FrameLeave   = "leave"
)

const eventBuffer = 64

// emit delivers ev without blocking the backend; a full buffer means nobody is pumping.
func emit(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		log.Printf("conference event dropped, buffer full: %s", ev.Type)
	}
}
