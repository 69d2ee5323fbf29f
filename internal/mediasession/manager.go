package mediasession

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass-service/internal/conference"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/media"
)

// Options configure one classroom session.
type Options struct {
	RoomName           string
	DisplayName        string
	ParticipantID      string
	Role               domain.Role
	MaxParticipants    int
	RecordingEnabled   bool
	ScreenShareEnabled bool
}

// Manager owns one live session: local media, the conference backend and the
// participant set. Repeated user-triggered calls are not serialized; callers debounce.
type Manager struct {
	opts     Options
	backend  conference.Backend
	acquirer *media.Acquirer
	now      func() time.Time

	mu           sync.Mutex
	backendReady bool
	mediaReady   bool
	status       domain.ConnectionStatus
	localStream  *media.Stream
	screenStream *media.Stream
	micMuted     bool
	cameraOff    bool
	handRaised   bool
	recording    bool
	sharing      bool
	quality      domain.ConnectionQuality
	participants map[string]*domain.Participant
	pumpCancel   context.CancelFunc
	pumpDone     chan struct{}

	// retiredPump is a pump cancelled from inside itself that may still be draining.
	retiredPump chan struct{}

	subMu       sync.Mutex
	subscribers map[chan Notification]struct{}
}

func NewManager(opts Options, backend conference.Backend, acquirer *media.Acquirer) *Manager {
	if opts.ParticipantID == "" {
		opts.ParticipantID = uuid.NewString()
	}
	if !opts.Role.Valid() {
		opts.Role = domain.RoleStudent
	}
	return &Manager{
		opts:         opts,
		backend:      backend,
		acquirer:     acquirer,
		now:          time.Now,
		status:       domain.StatusDisconnected,
		localStream:  media.NewStream(),
		quality:      domain.QualityUnknown,
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan Notification]struct{}),
	}
}

// ParticipantID is the id the local user joins with.
func (m *Manager) ParticipantID() string { return m.opts.ParticipantID }

// Initialize loads the backend SDK and acquires local media. Once both succeeded it is
// a no-op. If the SDK loads but no device is usable the session can still join
// receive-only; calling Initialize again retries device acquisition.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	backendReady, mediaReady := m.backendReady, m.mediaReady
	m.mu.Unlock()
	if backendReady && mediaReady {
		return nil
	}

	if !backendReady {
		if err := m.backend.Initialize(ctx); err != nil {
			initErr := &domain.InitializationError{Stage: "sdk", Err: err}
			m.notify(Notification{Type: NotifyError, Err: initErr})
			return initErr
		}
		m.mu.Lock()
		m.backendReady = true
		m.mu.Unlock()
	}

	stream, err := m.acquirer.Acquire(ctx)
	if err != nil {
		m.mu.Lock()
		m.localStream = media.NewStream()
		m.cameraOff = true
		m.mu.Unlock()
		initErr := &domain.InitializationError{Stage: "media", Err: err}
		m.notify(Notification{Type: NotifyError, Err: initErr})
		return initErr
	}

	m.mu.Lock()
	m.localStream = stream
	m.mediaReady = true
	m.cameraOff = len(stream.VideoTracks()) == 0
	m.applyTrackStateLocked()
	m.mu.Unlock()
	return nil
}

// JoinRoom opens the conference session. It is a no-op while connecting or connected.
func (m *Manager) JoinRoom(ctx context.Context) error {
	m.mu.Lock()
	retired := m.retiredPump
	m.retiredPump = nil
	m.mu.Unlock()
	if retired != nil {
		<-retired
	}

	m.mu.Lock()
	if !m.backendReady {
		m.mu.Unlock()
		return &domain.JoinError{Room: m.opts.RoomName, Err: domain.ErrNotInitialized}
	}
	if m.status != domain.StatusDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.status = domain.StatusConnecting
	// The local tile is available before the backend echoes our own join.
	m.participants[m.opts.ParticipantID] = &domain.Participant{
		ID:          m.opts.ParticipantID,
		DisplayName: m.opts.DisplayName,
		Role:        m.opts.Role,
		IsMuted:     m.micMuted,
		IsCameraOff: m.cameraOff,
		JoinedAt:    m.now(),
	}
	joinOpts := conference.JoinOptions{
		RoomName:           m.opts.RoomName,
		DisplayName:        m.opts.DisplayName,
		ParticipantID:      m.opts.ParticipantID,
		Role:               m.opts.Role,
		MaxParticipants:    m.opts.MaxParticipants,
		RecordingEnabled:   m.opts.RecordingEnabled,
		ScreenShareEnabled: m.opts.ScreenShareEnabled,
		StartAudioMuted:    m.micMuted,
		StartVideoMuted:    m.cameraOff,
	}
	m.drainStaleEventsLocked()
	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.pumpCancel, m.pumpDone = cancel, done
	m.mu.Unlock()

	go m.pump(pumpCtx, done)

	if err := m.backend.Join(ctx, joinOpts); err != nil {
		m.mu.Lock()
		m.status = domain.StatusDisconnected
		m.clearParticipantsLocked()
		m.pumpCancel, m.pumpDone = nil, nil
		m.mu.Unlock()
		cancel()
		<-done

		joinErr := &domain.JoinError{Room: m.opts.RoomName, Err: err}
		m.notify(Notification{Type: NotifyError, Err: joinErr})
		return joinErr
	}

	m.mu.Lock()
	m.status = domain.StatusConnected
	m.mu.Unlock()

	log.Printf("joined room %s as %s (%s)", m.opts.RoomName, m.opts.DisplayName, m.opts.Role)
	m.notify(Notification{Type: NotifyConnection, Connected: true})
	m.notifyParticipants()
	return nil
}

// LeaveRoom tears the session down and stops every local track. It never fails and
// is safe to call repeatedly; connection false is emitted only when a session was open.
func (m *Manager) LeaveRoom(ctx context.Context) {
	m.mu.Lock()
	cancel, done := m.pumpCancel, m.pumpDone
	m.pumpCancel, m.pumpDone = nil, nil
	wasOpen := m.status != domain.StatusDisconnected
	m.status = domain.StatusDisconnected
	local, screen := m.releaseMediaLocked()
	m.clearParticipantsLocked()
	m.mu.Unlock()

	stopStreams(local, screen)

	if wasOpen {
		if err := m.backend.Leave(ctx); err != nil {
			log.Printf("leave room %s: %v", m.opts.RoomName, err)
		}
	}
	if cancel != nil {
		cancel()
		<-done
	}
	if wasOpen {
		log.Printf("left room %s", m.opts.RoomName)
		m.notify(Notification{Type: NotifyConnection, Connected: false})
		m.notifyParticipants()
	}
}

// Dispose leaves the room and closes every subscription. The manager must not be
// used afterwards.
func (m *Manager) Dispose() {
	m.LeaveRoom(context.Background())

	m.mu.Lock()
	m.backendReady = false
	m.mu.Unlock()

	m.subMu.Lock()
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
	m.subMu.Unlock()
}

// ToggleMicrophone flips the local audio tracks and, when connected, the backend's
// audio state. It works before joining so a user can test their microphone.
func (m *Manager) ToggleMicrophone(ctx context.Context) bool {
	m.mu.Lock()
	m.micMuted = !m.micMuted
	muted := m.micMuted
	m.applyTrackStateLocked()
	if self, ok := m.participants[m.opts.ParticipantID]; ok {
		self.IsMuted = muted
	}
	connected := m.status == domain.StatusConnected
	m.mu.Unlock()

	if connected {
		m.forward(ctx, conference.CmdToggleAudio)
	}
	m.notifyParticipants()
	return muted
}

// ToggleCamera flips the local video tracks. Without a camera the camera stays off.
func (m *Manager) ToggleCamera(ctx context.Context) bool {
	m.mu.Lock()
	if len(m.localStream.VideoTracks()) == 0 {
		m.cameraOff = true
		m.mu.Unlock()
		return true
	}
	m.cameraOff = !m.cameraOff
	off := m.cameraOff
	m.applyTrackStateLocked()
	if self, ok := m.participants[m.opts.ParticipantID]; ok {
		self.IsCameraOff = off
	}
	connected := m.status == domain.StatusConnected
	m.mu.Unlock()

	if connected {
		m.forward(ctx, conference.CmdToggleVideo)
	}
	m.notifyParticipants()
	return off
}

// ToggleRaiseHand flips the local raised-hand flag.
func (m *Manager) ToggleRaiseHand(ctx context.Context) bool {
	m.mu.Lock()
	m.handRaised = !m.handRaised
	raised := m.handRaised
	if self, ok := m.participants[m.opts.ParticipantID]; ok {
		self.IsHandRaised = raised
	}
	connected := m.status == domain.StatusConnected
	m.mu.Unlock()

	if connected {
		m.forward(ctx, conference.CmdToggleRaiseHand)
	}
	m.notifyParticipants()
	return raised
}

// StartRecording asks the backend to record. It returns false without side effects
// when recording is not enabled for this session or no session is open.
func (m *Manager) StartRecording(ctx context.Context) bool {
	return m.setRecording(ctx, true)
}

func (m *Manager) StopRecording(ctx context.Context) bool {
	return m.setRecording(ctx, false)
}

func (m *Manager) setRecording(ctx context.Context, on bool) bool {
	if !m.opts.RecordingEnabled {
		log.Printf("recording in room %s: %v", m.opts.RoomName, domain.ErrCapabilityDisabled)
		return false
	}
	m.mu.Lock()
	if m.status != domain.StatusConnected {
		m.mu.Unlock()
		return false
	}
	if m.recording == on {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	cmd := conference.CmdStopRecording
	if on {
		cmd = conference.CmdStartRecording
	}
	if err := m.backend.ExecuteCommand(ctx, cmd); err != nil {
		m.notify(Notification{Type: NotifyError, Err: err})
		return false
	}

	// The backend's recordingStatusChanged echo notifies subscribers.
	m.mu.Lock()
	m.recording = on
	m.mu.Unlock()
	return true
}

// StartScreenShare opens a display capture separate from the camera. Ending the
// captured track from outside the application stops the share.
func (m *Manager) StartScreenShare(ctx context.Context) bool {
	if !m.opts.ScreenShareEnabled {
		log.Printf("screen share in room %s: %v", m.opts.RoomName, domain.ErrCapabilityDisabled)
		return false
	}
	m.mu.Lock()
	if m.sharing {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	stream, err := m.acquirer.AcquireDisplay(ctx)
	if err != nil {
		m.notify(Notification{Type: NotifyError, Err: err})
		return false
	}

	m.mu.Lock()
	m.screenStream = stream
	m.sharing = true
	connected := m.status == domain.StatusConnected
	m.mu.Unlock()

	if connected {
		m.forward(ctx, conference.CmdToggleShareScreen)
	}
	m.notify(Notification{Type: NotifyScreenShare, On: true})
	// A capture that already ended stops the share right here.
	for _, track := range stream.VideoTracks() {
		track.OnEnded(func() { m.endScreenShare(stream) })
	}
	return true
}

func (m *Manager) StopScreenShare(ctx context.Context) bool {
	if !m.opts.ScreenShareEnabled {
		return false
	}
	m.mu.Lock()
	stream := m.screenStream
	m.mu.Unlock()
	if stream == nil {
		return false
	}
	return m.stopScreenShare(ctx, stream)
}

// endScreenShare handles the captured track ending; it ignores stale streams.
func (m *Manager) endScreenShare(stream *media.Stream) {
	m.stopScreenShare(context.Background(), stream)
}

func (m *Manager) stopScreenShare(ctx context.Context, stream *media.Stream) bool {
	m.mu.Lock()
	if m.screenStream != stream {
		m.mu.Unlock()
		return false
	}
	m.screenStream = nil
	m.sharing = false
	connected := m.status == domain.StatusConnected
	m.mu.Unlock()

	stream.Stop()
	if connected {
		m.forward(ctx, conference.CmdToggleShareScreen)
	}
	m.notify(Notification{Type: NotifyScreenShare, On: false})
	return true
}

// IsConnected reports whether a backend session is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == domain.StatusConnected
}

// LocalStream returns the stream owned by this manager. After LeaveRoom none of its
// tracks are live.
func (m *Manager) LocalStream() *media.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localStream
}

// ScreenStream returns the active display capture, or nil.
func (m *Manager) ScreenStream() *media.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenStream
}

// RemoteStreams are owned by the backend.
func (m *Manager) RemoteStreams() []*media.Stream {
	return m.backend.RemoteStreams()
}

// Participants returns a snapshot ordered by join time.
func (m *Manager) Participants() []domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participantsLocked()
}

// State returns a snapshot of the whole session.
func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.SessionState{
		RoomName:      m.opts.RoomName,
		Participants:  m.participantsLocked(),
		Status:        m.status,
		Recording:     m.recording,
		ScreenSharing: m.sharing,
		Quality:       m.quality,
	}
}

// HandleEvent applies one backend event. Events are applied in delivery order.
func (m *Manager) HandleEvent(ev conference.Event) {
	switch ev.Type {
	case conference.EventConferenceLeft:
		m.remoteDisconnect()
		return
	case conference.EventConferenceJoined:
		return
	case conference.EventRecordingStatusChanged:
		m.mu.Lock()
		m.recording = ev.On
		m.mu.Unlock()
		m.notify(Notification{Type: NotifyRecording, On: ev.On})
		return
	case conference.EventScreenSharingStatusChanged:
		// The capture track ending is the only stop signal for our own share.
		return
	case conference.EventConnectionQualityChanged:
		m.mu.Lock()
		m.quality = ev.Quality
		m.mu.Unlock()
		m.notify(Notification{Type: NotifyQuality, Quality: ev.Quality})
		return
	}

	m.mu.Lock()
	changed := m.applyParticipantEventLocked(ev)
	m.mu.Unlock()
	if changed {
		m.notifyParticipants()
	}
}

func (m *Manager) applyParticipantEventLocked(ev conference.Event) bool {
	if ev.ID == "" {
		return false
	}
	switch ev.Type {
	case conference.EventParticipantJoined:
		if _, ok := m.participants[ev.ID]; ok {
			return false
		}
		role := ev.Role
		if !role.Valid() {
			role = domain.RoleStudent
		}
		m.participants[ev.ID] = &domain.Participant{
			ID:          ev.ID,
			DisplayName: ev.DisplayName,
			Role:        role,
			JoinedAt:    m.now(),
		}
		return true
	case conference.EventParticipantLeft:
		if _, ok := m.participants[ev.ID]; !ok {
			return false
		}
		delete(m.participants, ev.ID)
		return true
	}

	p, ok := m.participants[ev.ID]
	if !ok {
		return false
	}
	switch ev.Type {
	case conference.EventAudioMuteStatusChanged:
		p.IsMuted = ev.Muted
	case conference.EventVideoMuteStatusChanged:
		p.IsCameraOff = ev.Muted
	case conference.EventRaiseHandUpdated:
		p.IsHandRaised = ev.HandRaised
		if ev.ID == m.opts.ParticipantID {
			m.handRaised = ev.HandRaised
		}
	default:
		return false
	}
	return true
}

// remoteDisconnect runs when the backend ends the session on its own.
func (m *Manager) remoteDisconnect() {
	m.mu.Lock()
	if m.status == domain.StatusDisconnected {
		m.mu.Unlock()
		return
	}
	cancel := m.pumpCancel
	m.retiredPump = m.pumpDone
	m.pumpCancel, m.pumpDone = nil, nil
	m.status = domain.StatusDisconnected
	local, screen := m.releaseMediaLocked()
	m.clearParticipantsLocked()
	m.mu.Unlock()

	stopStreams(local, screen)
	if cancel != nil {
		cancel()
	}
	log.Printf("room %s closed by conference backend", m.opts.RoomName)
	m.notify(Notification{Type: NotifyConnection, Connected: false})
	m.notifyParticipants()
}

func (m *Manager) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	events := m.backend.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ctx.Err() != nil {
				return
			}
			m.HandleEvent(ev)
		}
	}
}

// drainStaleEventsLocked discards events left over from a previous session.
func (m *Manager) drainStaleEventsLocked() {
	events := m.backend.Events()
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

func (m *Manager) forward(ctx context.Context, cmd conference.Command) {
	err := m.backend.ExecuteCommand(ctx, cmd)
	if err == nil || errors.Is(err, conference.ErrNotConnected) {
		return
	}
	log.Printf("conference command %s: %v", cmd, err)
	m.notify(Notification{Type: NotifyError, Err: err})
}

func (m *Manager) applyTrackStateLocked() {
	for _, t := range m.localStream.AudioTracks() {
		t.SetEnabled(!m.micMuted)
	}
	for _, t := range m.localStream.VideoTracks() {
		t.SetEnabled(!m.cameraOff)
	}
}

// releaseMediaLocked detaches every local stream so the caller can stop them
// outside the lock.
func (m *Manager) releaseMediaLocked() (*media.Stream, *media.Stream) {
	local, screen := m.localStream, m.screenStream
	m.screenStream = nil
	m.sharing = false
	m.recording = false
	m.handRaised = false
	m.mediaReady = false
	m.quality = domain.QualityUnknown
	return local, screen
}

func (m *Manager) clearParticipantsLocked() {
	for id := range m.participants {
		delete(m.participants, id)
	}
}

func (m *Manager) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Manager) notifyParticipants() {
	m.notify(Notification{Type: NotifyParticipants, Participants: m.Participants()})
}

func stopStreams(streams ...*media.Stream) {
	for _, s := range streams {
		if s != nil {
			s.Stop()
		}
	}
}
