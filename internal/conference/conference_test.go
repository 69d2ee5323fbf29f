package conference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"liveclass-service/internal/domain"
)

func TestOnceLoaderLoadsOnce(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	loader := NewOnceLoader(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loader.Load(context.Background()); err != nil {
				t.Errorf("load: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("load again: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one load, got %d", got)
	}
	if !loader.Loaded() {
		t.Fatalf("expected loaded")
	}
}

func TestOnceLoaderRetriesAfterFailure(t *testing.T) {
	fail := true
	loader := NewOnceLoader(func(ctx context.Context) error {
		if fail {
			return errors.New("script blocked")
		}
		return nil
	})

	if err := loader.Load(context.Background()); err == nil {
		t.Fatalf("expected first load to fail")
	}
	if loader.Loaded() {
		t.Fatalf("failed load must not mark loaded")
	}
	fail = false
	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestHTTPLoaderChecksStatus(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	loader := NewHTTPLoader(srv.Client(), srv.URL+"/external_api.js")
	if err := loader.Load(context.Background()); err == nil {
		t.Fatalf("expected 404 to fail the load")
	}
	status = http.StatusOK
	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestNewSelectsVariant(t *testing.T) {
	b, err := New(Settings{})
	if err != nil || b.Kind() != KindLocal {
		t.Fatalf("expected local default, got %v %v", b, err)
	}
	if _, err := New(Settings{Kind: KindWebSocket}); err == nil {
		t.Fatalf("expected missing url error")
	}
	b, err = New(Settings{Kind: KindWebSocket, URL: "ws://example.invalid/conference"})
	if err != nil || b.Kind() != KindWebSocket {
		t.Fatalf("expected websocket backend, got %v %v", b, err)
	}
	if _, err := New(Settings{Kind: "zoom"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLocalBackendEchoesCommands(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend()

	if err := b.ExecuteCommand(ctx, CmdToggleAudio); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if err := b.Join(ctx, JoinOptions{RoomName: "room42"}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := b.Join(ctx, JoinOptions{RoomName: "room42", ParticipantID: "me", DisplayName: "Ada", Role: domain.RoleTeacher}); err != nil {
		t.Fatalf("join: %v", err)
	}
	expectEvent(t, b.Events(), EventConferenceJoined)
	expectEvent(t, b.Events(), EventParticipantJoined)

	if err := b.ExecuteCommand(ctx, CmdToggleAudio); err != nil {
		t.Fatalf("toggle audio: %v", err)
	}
	ev := expectEvent(t, b.Events(), EventAudioMuteStatusChanged)
	if !ev.Muted || ev.ID != "me" {
		t.Fatalf("expected self muted, got %+v", ev)
	}
	if err := b.ExecuteCommand(ctx, CmdStartRecording); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ev := expectEvent(t, b.Events(), EventRecordingStatusChanged); !ev.On {
		t.Fatalf("expected recording on")
	}
	var unknown *UnknownCommandError
	if err := b.ExecuteCommand(ctx, Command("dance")); !errors.As(err, &unknown) {
		t.Fatalf("expected unknown command, got %v", err)
	}

	if err := b.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	expectEvent(t, b.Events(), EventConferenceLeft)
	if b.Connected() {
		t.Fatalf("expected disconnected")
	}
}

func TestSignalBackendExchangesFrames(t *testing.T) {
	commands := make(chan Frame, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("room") != "room42" || r.URL.Query().Get("id") != "me" {
			http.Error(w, "bad join", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Frame{Type: FrameEvent, Event: &Event{Type: EventConferenceJoined, ID: "me"}})
		_ = conn.WriteJSON(Frame{Type: FrameEvent, Event: &Event{Type: EventParticipantJoined, ID: "peer", DisplayName: "Bo", Role: domain.RoleStudent}})
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			commands <- f
			if f.Type == FrameCommand && f.Command == CmdToggleAudio {
				_ = conn.WriteJSON(Frame{Type: FrameEvent, Event: &Event{Type: EventAudioMuteStatusChanged, ID: "me", Muted: true}})
			}
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	b := NewSignalBackend("ws"+srv.URL[len("http"):], nil, nil)
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := b.Join(ctx, JoinOptions{RoomName: "room42", ParticipantID: "me", DisplayName: "Ada", Role: domain.RoleTeacher}); err != nil {
		t.Fatalf("join: %v", err)
	}
	expectEvent(t, b.Events(), EventConferenceJoined)
	expectEvent(t, b.Events(), EventParticipantJoined)
	if got := len(b.RemoteStreams()); got != 1 {
		t.Fatalf("expected one remote stream, got %d", got)
	}

	if err := b.ExecuteCommand(ctx, CmdToggleAudio); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	select {
	case f := <-commands:
		if f.Command != CmdToggleAudio {
			t.Fatalf("unexpected frame %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay never received command")
	}
	expectEvent(t, b.Events(), EventAudioMuteStatusChanged)

	if err := b.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	expectEvent(t, b.Events(), EventConferenceLeft)
	if b.Connected() || len(b.RemoteStreams()) != 0 {
		t.Fatalf("expected clean disconnect")
	}
	if err := b.ExecuteCommand(ctx, CmdToggleAudio); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected after leave, got %v", err)
	}
}

func TestSignalBackendJoinRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room full", http.StatusConflict)
	}))
	defer srv.Close()

	b := NewSignalBackend("ws"+srv.URL[len("http"):], nil, nil)
	if err := b.Join(context.Background(), JoinOptions{RoomName: "room42", ParticipantID: "me"}); err == nil {
		t.Fatalf("expected join to fail")
	}
	if b.Connected() {
		t.Fatalf("expected disconnected")
	}
}

func TestSignalBackendJoinFailsWhenRoomFillsAfterUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room full"))
	}))
	defer srv.Close()

	b := NewSignalBackend("ws"+srv.URL[len("http"):], nil, nil)
	err := b.Join(context.Background(), JoinOptions{RoomName: "room42", ParticipantID: "me"})
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected join to fail with the relay's close reason, got %v", err)
	}
	if b.Connected() {
		t.Fatalf("expected disconnected")
	}
	if err := b.ExecuteCommand(context.Background(), CmdToggleAudio); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func expectEvent(t *testing.T, ch <-chan Event, typ EventType) Event {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Type != typ {
			t.Fatalf("expected %s, got %s", typ, ev.Type)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", typ)
	}
	return Event{}
}
