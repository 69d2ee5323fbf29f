package http

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"liveclass-service/internal/conference"
	"liveclass-service/internal/domain"
)

// ConferenceRelay is a development conferencing backend. It keeps room membership
// and turns member commands into the status events a conferencing SDK would emit.
type ConferenceRelay struct {
	maxParticipants int
	upgrader        websocket.Upgrader

	mu    sync.Mutex
	seq   int
	rooms map[string]*relayRoom
}

type relayRoom struct {
	members   map[string]*relayMember
	recording bool
}

type relayMember struct {
	id         string
	name       string
	role       domain.Role
	joinedSeq  int
	audioMuted bool
	videoMuted bool
	handRaised bool
	sharing    bool

	send chan conference.Frame
	done chan struct{}
}

// NewConferenceRelay builds a relay. maxParticipants caps rooms unless a joiner asks
// for a lower cap; zero means unlimited.
func NewConferenceRelay(maxParticipants int) *ConferenceRelay {
	return &ConferenceRelay{
		maxParticipants: maxParticipants,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*relayRoom),
	}
}

// ServeConference handles /conference?room&id&name&role.
func (h *ConferenceRelay) ServeConference(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomName := q.Get("room")
	id := q.Get("id")
	if roomName == "" || id == "" {
		http.Error(w, "missing room or id", http.StatusBadRequest)
		return
	}
	limit := h.maxParticipants
	if raw := q.Get("max"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && (limit == 0 || n < limit) {
			limit = n
		}
	}
	audioMuted, _ := strconv.ParseBool(q.Get("audioMuted"))
	videoMuted, _ := strconv.ParseBool(q.Get("videoMuted"))

	member := &relayMember{
		id:         id,
		name:       q.Get("name"),
		role:       domain.Role(q.Get("role")),
		audioMuted: audioMuted,
		videoMuted: videoMuted,
		send:       make(chan conference.Frame, 64),
		done:       make(chan struct{}),
	}

	// Capacity is checked before the upgrade so a full room is a plain 409.
	h.mu.Lock()
	room := h.rooms[roomName]
	if room != nil {
		if _, dup := room.members[id]; dup {
			h.mu.Unlock()
			http.Error(w, "participant already in room", http.StatusConflict)
			return
		}
		if limit > 0 && len(room.members) >= limit {
			h.mu.Unlock()
			http.Error(w, "room full", http.StatusConflict)
			return
		}
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if !h.admit(roomName, member, limit) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room full"))
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case frame := <-member.send:
				if err := conn.WriteJSON(frame); err != nil {
					log.Printf("relay write error: %v", err)
					return
				}
			case <-member.done:
				return
			}
		}
	}()

	for {
		var frame conference.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		if frame.Type == conference.FrameLeave {
			break
		}
		if frame.Type == conference.FrameCommand {
			h.command(roomName, member, frame.Command)
		}
	}

	h.remove(roomName, member)
	close(member.done)
	<-writerDone
}

// admit re-checks capacity under the lock, then introduces the member to the room.
func (h *ConferenceRelay) admit(roomName string, m *relayMember, limit int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomName]
	if room == nil {
		room = &relayRoom{members: make(map[string]*relayMember)}
		h.rooms[roomName] = room
	}
	if _, dup := room.members[m.id]; dup {
		return false
	}
	if limit > 0 && len(room.members) >= limit {
		return false
	}
	h.seq++
	m.joinedSeq = h.seq

	m.push(conference.Event{Type: conference.EventConferenceJoined, ID: m.id})
	for _, other := range room.sortedMembers() {
		for _, ev := range other.snapshot() {
			m.push(ev)
		}
	}
	if room.recording {
		m.push(conference.Event{Type: conference.EventRecordingStatusChanged, On: true})
	}

	room.members[m.id] = m
	for _, ev := range m.snapshot() {
		room.broadcast(ev)
	}
	return true
}

func (h *ConferenceRelay) command(roomName string, m *relayMember, cmd conference.Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomName]
	if room == nil {
		return
	}
	switch cmd {
	case conference.CmdToggleAudio:
		m.audioMuted = !m.audioMuted
		room.broadcast(conference.Event{Type: conference.EventAudioMuteStatusChanged, ID: m.id, Muted: m.audioMuted})
	case conference.CmdToggleVideo:
		m.videoMuted = !m.videoMuted
		room.broadcast(conference.Event{Type: conference.EventVideoMuteStatusChanged, ID: m.id, Muted: m.videoMuted})
	case conference.CmdToggleRaiseHand:
		m.handRaised = !m.handRaised
		room.broadcast(conference.Event{Type: conference.EventRaiseHandUpdated, ID: m.id, HandRaised: m.handRaised})
	case conference.CmdToggleShareScreen:
		m.sharing = !m.sharing
		room.broadcast(conference.Event{Type: conference.EventScreenSharingStatusChanged, ID: m.id, On: m.sharing})
	case conference.CmdStartRecording, conference.CmdStopRecording:
		room.recording = cmd == conference.CmdStartRecording
		room.broadcast(conference.Event{Type: conference.EventRecordingStatusChanged, On: room.recording})
	default:
		log.Printf("relay %s: unknown command %q from %s", roomName, cmd, m.id)
	}
}

func (h *ConferenceRelay) remove(roomName string, m *relayMember) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomName]
	if room == nil || room.members[m.id] != m {
		return
	}
	delete(room.members, m.id)
	room.broadcast(conference.Event{Type: conference.EventParticipantLeft, ID: m.id})
	if len(room.members) == 0 {
		delete(h.rooms, roomName)
	}
}

// Occupancy reports the member count of a room.
func (h *ConferenceRelay) Occupancy(roomName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.rooms[roomName]; room != nil {
		return len(room.members)
	}
	return 0
}

func (r *relayRoom) broadcast(ev conference.Event) {
	for _, m := range r.members {
		m.push(ev)
	}
}

func (r *relayRoom) sortedMembers() []*relayMember {
	out := make([]*relayMember, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].joinedSeq < out[j].joinedSeq })
	return out
}

// snapshot is the event sequence that describes m to a newcomer.
func (m *relayMember) snapshot() []conference.Event {
	events := []conference.Event{{Type: conference.EventParticipantJoined, ID: m.id, DisplayName: m.name, Role: m.role}}
	if m.audioMuted {
		events = append(events, conference.Event{Type: conference.EventAudioMuteStatusChanged, ID: m.id, Muted: true})
	}
	if m.videoMuted {
		events = append(events, conference.Event{Type: conference.EventVideoMuteStatusChanged, ID: m.id, Muted: true})
	}
	if m.handRaised {
		events = append(events, conference.Event{Type: conference.EventRaiseHandUpdated, ID: m.id, HandRaised: true})
	}
	return events
}

// push never blocks the room; a member that cannot keep up loses events.
func (m *relayMember) push(ev conference.Event) {
	event := ev
	select {
	case m.send <- conference.Frame{Type: conference.FrameEvent, Event: &event}:
	default:
		log.Printf("relay: dropping %s for slow member %s", ev.Type, m.id)
	}
}
