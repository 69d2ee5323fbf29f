package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"liveclass-service/internal/conference"
	"liveclass-service/internal/config"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/media"
	"liveclass-service/internal/mediasession"
)

type joinFlags struct {
	room      string
	name      string
	id        string
	role      string
	backend   string
	url       string
	noCamera  bool
	noMic     bool
	raiseHand bool
}

// NewJoinCmd runs a headless participant against the configured conferencing backend.
// Synthetic devices stand in for a camera and microphone.
func NewJoinCmd(configPath *string) *cobra.Command {
	var f joinFlags
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a classroom conference as a headless participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), *configPath, f)
		},
	}
	cmd.Flags().StringVar(&f.room, "room", "room42", "conference room name")
	cmd.Flags().StringVar(&f.name, "name", "Guest", "display name")
	cmd.Flags().StringVar(&f.id, "id", "", "participant id (random when empty)")
	cmd.Flags().StringVar(&f.role, "role", string(domain.RoleStudent), "teacher or student")
	cmd.Flags().StringVar(&f.backend, "backend", "", "conference backend (local or websocket); overrides config")
	cmd.Flags().StringVar(&f.url, "url", "", "relay url for the websocket backend; overrides config")
	cmd.Flags().BoolVar(&f.noCamera, "no-camera", false, "simulate a missing camera")
	cmd.Flags().BoolVar(&f.noMic, "no-mic", false, "simulate a missing microphone")
	cmd.Flags().BoolVar(&f.raiseHand, "raise-hand", false, "raise hand after joining")
	return cmd
}

func runJoin(ctx context.Context, configPath string, f joinFlags) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	role := domain.Role(f.role)
	if !role.Valid() {
		return fmt.Errorf("role must be teacher or student, got %q", f.role)
	}

	settings := conference.Settings{
		Kind:   cfg.Conference.Backend,
		URL:    cfg.Conference.URL,
		SDKURL: cfg.Conference.SDKURL,
	}
	if f.backend != "" {
		settings.Kind = f.backend
	}
	if f.url != "" {
		settings.URL = f.url
	}
	backend, err := conference.New(settings)
	if err != nil {
		return err
	}

	id := f.id
	if id == "" {
		id = uuid.NewString()
	}
	capturer := &media.SyntheticCapturer{DenyVideo: f.noCamera, DenyAudio: f.noMic}
	manager := mediasession.NewManager(mediasession.Options{
		RoomName:           f.room,
		DisplayName:        f.name,
		ParticipantID:      id,
		Role:               role,
		MaxParticipants:    cfg.Conference.MaxParticipants,
		RecordingEnabled:   cfg.Conference.Recording,
		ScreenShareEnabled: cfg.Conference.ScreenShare,
	}, backend, media.NewAcquirer(capturer))
	defer manager.Dispose()

	notes, cancel := manager.Subscribe()
	defer cancel()

	if err := manager.Initialize(ctx); err != nil {
		// Without devices the session still joins receive-only.
		log.Printf("initialize: %v", err)
	}
	if err := manager.JoinRoom(ctx); err != nil {
		return err
	}
	log.Printf("joined %s as %s (%s) via %s backend", f.room, f.name, role, backend.Kind())
	if f.raiseHand {
		manager.ToggleRaiseHand(ctx)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	for {
		select {
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			logNotification(n)
			if n.Type == mediasession.NotifyConnection && !n.Connected {
				return nil
			}
		case <-stop:
			log.Println("leaving room...")
			manager.LeaveRoom(context.Background())
			return nil
		case <-ctx.Done():
			manager.LeaveRoom(context.Background())
			return ctx.Err()
		}
	}
}

func logNotification(n mediasession.Notification) {
	switch n.Type {
	case mediasession.NotifyParticipants:
		log.Printf("participants: %d", len(n.Participants))
		for _, p := range n.Participants {
			log.Printf("  %s %s (%s) muted=%v cameraOff=%v hand=%v", p.ID, p.DisplayName, p.Role, p.IsMuted, p.IsCameraOff, p.IsHandRaised)
		}
	case mediasession.NotifyConnection:
		log.Printf("connected: %v", n.Connected)
	case mediasession.NotifyRecording:
		log.Printf("recording: %v", n.On)
	case mediasession.NotifyScreenShare:
		log.Printf("screen share: %v", n.On)
	case mediasession.NotifyQuality:
		log.Printf("connection quality: %s", n.Quality)
	case mediasession.NotifyError:
		log.Printf("error: %v", n.Err)
	}
}
