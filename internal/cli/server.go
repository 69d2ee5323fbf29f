package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"liveclass-service/internal/app"
	"liveclass-service/internal/config"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/infra/memory"
	pgstore "liveclass-service/internal/infra/postgres"
	redisstore "liveclass-service/internal/infra/redis"
	"liveclass-service/internal/presence"
	transport "liveclass-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the classroom server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	interactive, lessons := buildServices(cfg, redisClient, pool, redisTTL)
	wsHandler := transport.NewWSHandler(interactive, lessons, transport.WSOptions{
		Grace: config.TTLDuration(cfg.Presence.Grace, presence.DefaultGracePeriod),
	})
	relay := transport.NewConferenceRelay(cfg.Conference.MaxParticipants)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/conference", relay.ServeConference)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting classroom service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildServices picks Redis and Postgres implementations when configured and
// in-memory ones otherwise.
func buildServices(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool, redisTTL time.Duration) (*app.InteractiveService, *app.LessonService) {
	var loader memory.DeckLoader = memory.NewStaticDeckLoader(sampleDecks())
	var responses app.ResponseStore = memory.NewResponseStore()
	if pool != nil {
		loader = pgstore.NewDeckLoader(pool)
		responses = pgstore.NewResponseStore(pool)
	}

	deckTTL := config.TTLDuration(cfg.Deck.TTL, 10*time.Minute)
	var (
		decks    app.DeckRepository
		sessions app.SessionRepository
		states   app.SlideStateStore
		feed     app.Feed
	)
	if redisClient != nil {
		decks = redisstore.NewDeckRepository(redisClient, loader, deckTTL)
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
		states = redisstore.NewSlideStateStore(redisClient, redisTTL)
		feed = redisstore.NewFeed(redisClient)
		if pool == nil {
			responses = redisstore.NewResponseStore(redisClient, redisTTL)
		}
	} else {
		decks = memory.NewDeckRepository(loader, deckTTL)
		sessions = memory.NewSessionStore()
		states = memory.NewSlideStateStore()
		feed = memory.NewFeed()
	}

	interactive := app.NewInteractiveService(sessions, decks, responses, states, feed)
	lessons := app.NewLessonService(sessions)
	return interactive, lessons
}

// sampleDecks provides a minimal deck; configure postgres.url to load decks from the decks table.
func sampleDecks() map[string]domain.Deck {
	return map[string]domain.Deck{
		"deck-1": {
			ID: "deck-1",
			Slides: []domain.Slide{
				{
					ID:     "s1",
					Kind:   domain.SlideQuiz,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "a", Text: "3"},
						{ID: "b", Text: "4", IsCorrect: true},
						{ID: "c", Text: "5"},
					},
				},
				{
					ID:     "s2",
					Kind:   domain.SlidePoll,
					Prompt: "How confident do you feel about addition?",
					Options: []domain.Option{
						{ID: "high", Text: "Very"},
						{ID: "mid", Text: "Somewhat"},
						{ID: "low", Text: "Not yet"},
					},
				},
			},
		},
	}
}
