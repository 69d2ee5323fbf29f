package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"liveclass-service/internal/app"
	"liveclass-service/internal/domain"
	pgstore "liveclass-service/internal/infra/postgres"
	pgmigrations "liveclass-service/internal/infra/postgres/migrations"
	infraredis "liveclass-service/internal/infra/redis"
)

func TestSlideFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewDeckLoader(pool)
	if err := loader.SaveDeck(ctx, sampleDeck()); err != nil {
		t.Fatalf("save deck: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	// Two service instances share Postgres and Redis, like two replicas would.
	newService := func() *app.InteractiveService {
		return app.NewInteractiveService(
			infraredis.NewSessionStore(redisClient, 5*time.Minute),
			infraredis.NewDeckRepository(redisClient, loader, 5*time.Minute),
			pgstore.NewResponseStore(pool),
			infraredis.NewSlideStateStore(redisClient, 5*time.Minute),
			infraredis.NewFeed(redisClient),
		)
	}
	first, second := newService(), newService()

	if _, err := first.OpenSession(ctx, "class-1", "deck-1"); err != nil {
		t.Fatalf("open session: %v", err)
	}

	var mu sync.Mutex
	var seen []domain.Response
	unsubscribe, err := second.SubscribeToResponses(ctx, "class-1", "s1", func(r domain.Response) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if _, err := first.Activate(ctx, "class-1", "s1", domain.RoleTeacher); err != nil {
		t.Fatalf("activate: %v", err)
	}

	resp, err := second.SubmitResponse(ctx, domain.Submission{
		SessionID:   "class-1",
		SlideID:     "s1",
		StudentID:   "u1",
		StudentName: "Alice",
		OptionID:    "o2",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.IsCorrect == nil || !*resp.IsCorrect {
		t.Fatalf("expected a correct response, got %+v", resp)
	}

	_, err = first.SubmitResponse(ctx, domain.Submission{
		SessionID: "class-1",
		SlideID:   "s1",
		StudentID: "u1",
		OptionID:  "o1",
	})
	if !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("expected duplicate from the other instance, got %v", err)
	}

	if _, err := first.Reveal(ctx, "class-1", "s1", domain.RoleTeacher); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	results, err := second.Results(ctx, "class-1", "s1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Total != 1 || results.Correct != 1 {
		t.Fatalf("unexpected results %+v", results)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected one live response across instances, got %d", n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "liveclass", "POSTGRES_PASSWORD": "liveclass", "POSTGRES_DB": "liveclass"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://liveclass:liveclass@%s:%s/liveclass?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleDeck() domain.Deck {
	return domain.Deck{
		ID: "deck-1",
		Slides: []domain.Slide{
			{
				ID:     "s1",
				Kind:   domain.SlideQuiz,
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true},
					{ID: "o3", Text: "5"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
