package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"liveclass-service/internal/conference"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/media"
	"liveclass-service/internal/mediasession"
)

func TestRelayIntroducesMembersAndEchoesCommands(t *testing.T) {
	relay := NewConferenceRelay(0)
	server := newRelayServer(relay)
	defer server.Close()
	ctx := context.Background()

	teacher := joinRelay(t, server, conference.JoinOptions{RoomName: "room42", ParticipantID: "t1", DisplayName: "Tess", Role: domain.RoleTeacher})
	defer teacher.Leave(ctx)
	nextEvent(t, teacher, conference.EventConferenceJoined, "t1")
	nextEvent(t, teacher, conference.EventParticipantJoined, "t1")

	student := joinRelay(t, server, conference.JoinOptions{RoomName: "room42", ParticipantID: "u1", DisplayName: "Ada", Role: domain.RoleStudent, StartVideoMuted: true})
	nextEvent(t, student, conference.EventConferenceJoined, "u1")
	ev := nextEvent(t, student, conference.EventParticipantJoined, "t1")
	if ev.Role != domain.RoleTeacher || ev.DisplayName != "Tess" {
		t.Fatalf("unexpected teacher introduction %+v", ev)
	}
	nextEvent(t, teacher, conference.EventParticipantJoined, "u1")
	if muted := nextEvent(t, teacher, conference.EventVideoMuteStatusChanged, "u1"); !muted.Muted {
		t.Fatalf("expected student camera reported off")
	}
	if got := len(teacher.RemoteStreams()); got != 1 {
		t.Fatalf("expected teacher to see one remote stream, got %d", got)
	}

	if err := student.ExecuteCommand(ctx, conference.CmdToggleAudio); err != nil {
		t.Fatalf("toggle audio: %v", err)
	}
	if ev := nextEvent(t, teacher, conference.EventAudioMuteStatusChanged, "u1"); !ev.Muted {
		t.Fatalf("expected muted broadcast, got %+v", ev)
	}
	if err := teacher.ExecuteCommand(ctx, conference.CmdStartRecording); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if ev := nextEvent(t, student, conference.EventRecordingStatusChanged, ""); !ev.On {
		t.Fatalf("expected recording on, got %+v", ev)
	}

	if err := student.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	nextEvent(t, teacher, conference.EventParticipantLeft, "u1")
	waitUntil(t, func() bool { return relay.Occupancy("room42") == 1 })
	if got := len(teacher.RemoteStreams()); got != 0 {
		t.Fatalf("expected remote stream dropped, got %d", got)
	}
}

func TestRelayRejectsFullRoomAndDuplicates(t *testing.T) {
	relay := NewConferenceRelay(0)
	server := newRelayServer(relay)
	defer server.Close()
	ctx := context.Background()

	first := joinRelay(t, server, conference.JoinOptions{RoomName: "room42", ParticipantID: "t1", MaxParticipants: 1})
	defer first.Leave(ctx)

	second := conference.NewSignalBackend(relayURL(server), nil, nil)
	if err := second.Join(ctx, conference.JoinOptions{RoomName: "room42", ParticipantID: "u1", MaxParticipants: 1}); err == nil {
		t.Fatalf("expected full room to reject join")
	}
	again := conference.NewSignalBackend(relayURL(server), nil, nil)
	if err := again.Join(ctx, conference.JoinOptions{RoomName: "room42", ParticipantID: "t1"}); err == nil {
		t.Fatalf("expected duplicate participant to be rejected")
	}
	if got := relay.Occupancy("room42"); got != 1 {
		t.Fatalf("expected one member, got %d", got)
	}
}

func TestMediaSessionsMeetThroughRelay(t *testing.T) {
	server := newRelayServer(NewConferenceRelay(0))
	defer server.Close()
	ctx := context.Background()

	teacher := newRelayManager(t, server, mediasession.Options{RoomName: "room42", ParticipantID: "t1", DisplayName: "Tess", Role: domain.RoleTeacher})
	student := newRelayManager(t, server, mediasession.Options{RoomName: "room42", ParticipantID: "u1", DisplayName: "Ada", Role: domain.RoleStudent})

	for _, m := range []*mediasession.Manager{teacher, student} {
		if err := m.Initialize(ctx); err != nil {
			t.Fatalf("init: %v", err)
		}
		if err := m.JoinRoom(ctx); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	waitUntil(t, func() bool { return len(teacher.Participants()) == 2 && len(student.Participants()) == 2 })

	if muted := student.ToggleMicrophone(ctx); !muted {
		t.Fatalf("expected student muted")
	}
	waitUntil(t, func() bool {
		for _, p := range teacher.Participants() {
			if p.ID == "u1" {
				return p.IsMuted
			}
		}
		return false
	})

	student.LeaveRoom(ctx)
	waitUntil(t, func() bool { return len(teacher.Participants()) == 1 })
	if student.IsConnected() {
		t.Fatalf("expected student disconnected after leave")
	}
	if !teacher.IsConnected() {
		t.Fatalf("teacher must stay connected")
	}
}

func newRelayServer(relay *ConferenceRelay) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/conference", relay.ServeConference)
	return httptest.NewServer(mux)
}

func relayURL(server *httptest.Server) string {
	return "ws" + server.URL[len("http"):] + "/conference"
}

func joinRelay(t *testing.T, server *httptest.Server, opts conference.JoinOptions) *conference.SignalBackend {
	t.Helper()
	b := conference.NewSignalBackend(relayURL(server), nil, nil)
	if err := b.Join(context.Background(), opts); err != nil {
		t.Fatalf("join %s: %v", opts.ParticipantID, err)
	}
	return b
}

func newRelayManager(t *testing.T, server *httptest.Server, opts mediasession.Options) *mediasession.Manager {
	t.Helper()
	backend, err := conference.New(conference.Settings{Kind: conference.KindWebSocket, URL: relayURL(server)})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	m := mediasession.NewManager(opts, backend, media.NewAcquirer(&media.SyntheticCapturer{}))
	t.Cleanup(m.Dispose)
	return m
}

// nextEvent skips events until one of typ for participant id arrives.
func nextEvent(t *testing.T, b conference.Backend, typ conference.EventType, id string) conference.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-b.Events():
			if ev.Type == typ && (id == "" || ev.ID == id) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s of %q", typ, id)
		}
	}
}
