package conference

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/media"
)

const admissionTimeout = 10 * time.Second

// SignalBackend talks to a conferencing relay over a websocket. Media itself flows
// through the relay's SDK; this side only carries commands and room events.
type SignalBackend struct {
	url    string
	loader Loader
	dialer *websocket.Dialer
	events chan Event

	mu       sync.Mutex
	conn     *websocket.Conn
	self     string
	leaving  bool
	readDone chan struct{}
	remote   map[string]*media.Stream

	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

func NewSignalBackend(relayURL string, loader Loader, dialer *websocket.Dialer) *SignalBackend {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &SignalBackend{
		url:    relayURL,
		loader: loader,
		dialer: dialer,
		events: make(chan Event, eventBuffer),
		remote: make(map[string]*media.Stream),
	}
}

func (b *SignalBackend) Kind() string { return KindWebSocket }

func (b *SignalBackend) Initialize(ctx context.Context) error {
	if b.loader == nil {
		return nil
	}
	return b.loader.Load(ctx)
}

func (b *SignalBackend) Join(ctx context.Context, opts JoinOptions) error {
	if b.loader != nil && !b.loader.Loaded() {
		return domain.ErrNotInitialized
	}
	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	target, err := joinURL(b.url, opts)
	if err != nil {
		return err
	}
	conn, resp, err := b.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	// The relay may still turn us away after the upgrade, so the join only
	// counts once the room admits us.
	if err := b.awaitAdmission(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.conn = conn
	b.self = opts.ParticipantID
	b.leaving = false
	b.readDone = done
	b.mu.Unlock()

	go b.readLoop(conn, done)
	return nil
}

func (b *SignalBackend) Leave(ctx context.Context) error {
	b.mu.Lock()
	conn, done, self := b.conn, b.readDone, b.self
	if conn == nil {
		b.mu.Unlock()
		return nil
	}
	b.leaving = true
	b.mu.Unlock()

	b.writeMu.Lock()
	_ = conn.WriteJSON(Frame{Type: FrameLeave})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.writeMu.Unlock()
	closeErr := conn.Close()

	select {
	case <-done:
	case <-ctx.Done():
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
		b.dropRemoteLocked()
	}
	b.mu.Unlock()

	emit(b.events, Event{Type: EventConferenceLeft, ID: self})
	if closeErr != nil {
		log.Printf("relay close: %v", closeErr)
	}
	return nil
}

func (b *SignalBackend) ExecuteCommand(_ context.Context, cmd Command, args ...any) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteJSON(Frame{Type: FrameCommand, Command: cmd, Args: args}); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

func (b *SignalBackend) Events() <-chan Event { return b.events }

func (b *SignalBackend) RemoteStreams() []*media.Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.remote))
	for id := range b.remote {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*media.Stream, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.remote[id])
	}
	return out
}

func (b *SignalBackend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *SignalBackend) awaitAdmission(ctx context.Context, conn *websocket.Conn) error {
	deadline := time.Now().Add(admissionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("await admission: %w", err)
		}
		if frame.Type != FrameEvent || frame.Event == nil {
			continue
		}
		emit(b.events, *frame.Event)
		if frame.Event.Type == EventConferenceJoined {
			return nil
		}
	}
}

func (b *SignalBackend) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			b.mu.Lock()
			leaving := b.leaving
			if b.conn == conn {
				b.conn = nil
				b.dropRemoteLocked()
			}
			b.mu.Unlock()
			if !leaving {
				log.Printf("relay connection lost: %v", err)
				emit(b.events, Event{Type: EventConferenceLeft})
			}
			return
		}
		if frame.Type != FrameEvent || frame.Event == nil {
			continue
		}
		b.trackRemote(*frame.Event)
		emit(b.events, *frame.Event)
	}
}

func (b *SignalBackend) trackRemote(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.ID == "" || ev.ID == b.self {
		return
	}
	switch ev.Type {
	case EventParticipantJoined:
		if _, ok := b.remote[ev.ID]; ok {
			return
		}
		b.remote[ev.ID] = media.NewStream(
			media.NewLocalTrack(media.KindAudio, ev.DisplayName+" audio"),
			media.NewLocalTrack(media.KindVideo, ev.DisplayName+" video"),
		)
	case EventParticipantLeft:
		if stream, ok := b.remote[ev.ID]; ok {
			stream.Stop()
			delete(b.remote, ev.ID)
		}
	}
}

func (b *SignalBackend) dropRemoteLocked() {
	for id, stream := range b.remote {
		stream.Stop()
		delete(b.remote, id)
	}
}

func joinURL(base string, opts JoinOptions) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("room", opts.RoomName)
	q.Set("id", opts.ParticipantID)
	q.Set("name", opts.DisplayName)
	q.Set("role", string(opts.Role))
	if opts.MaxParticipants > 0 {
		q.Set("max", strconv.Itoa(opts.MaxParticipants))
	}
	q.Set("audioMuted", strconv.FormatBool(opts.StartAudioMuted))
	q.Set("videoMuted", strconv.FormatBool(opts.StartVideoMuted))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
