package integration

import (
	"context"
	"database/sql"
	"encoding/json"
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
	"go.uber.org/zap"

	"quizhost/internal/app"
	"quizhost/internal/domain"
	pgloader "quizhost/internal/infra/postgres"
	pgmigrations "quizhost/internal/infra/postgres/migrations"
	infraredis "quizhost/internal/infra/redis"
)

func TestQuizSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, pgloader.NewQuizLoader(pool), 5*time.Minute)
	archive := infraredis.NewResultsArchive(redisClient, 5*time.Minute)
	host := app.NewHost(quizRepo, archive, app.SessionConfig{TimeLimit: time.Minute}, zap.NewNop())

	admin := &recordingSink{}
	session, err := host.OpenSession(ctx, "quiz-1", admin)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	// The definition loaded from Postgres should now be cached in Redis.
	if n, err := redisClient.Exists(ctx, "quiz:quiz-1:definition").Result(); err != nil || n != 1 {
		t.Fatalf("expected cached quiz definition, exists=%d err=%v", n, err)
	}

	aliceSink := &recordingSink{}
	alice, err := session.Join("Alice", aliceSink)
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bobSink := &recordingSink{}
	bob, err := session.Join("Bob", bobSink)
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := session.StartNextQuestion(); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := session.SubmitAnswer(alice.ID, 1); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	// Bob answers wrong; with everyone answered the single question closes
	// and the quiz finishes on its own.
	if err := session.SubmitAnswer(bob.ID, 0); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	standings := waitForStandings(t, aliceSink)
	if len(standings.Standings) != 2 {
		t.Fatalf("expected 2 standings, got %+v", standings.Standings)
	}
	if standings.Standings[0].Name != "Alice" || standings.Standings[0].Score != 1 {
		t.Fatalf("expected Alice leading with 1 point, got %+v", standings.Standings[0])
	}

	waitForArchivedKey(t, ctx, redisClient, "quiz:quiz-1:results:*")
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Send(ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) find(typ domain.EventType) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return domain.Event{}, false
}

func waitForStandings(t *testing.T, sink *recordingSink) domain.FinalStandings {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := sink.find(domain.EventFinalStandings); ok {
			standings, ok := ev.Payload.(domain.FinalStandings)
			if !ok {
				t.Fatalf("unexpected standings payload %T", ev.Payload)
			}
			return standings
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("final standings never arrived")
	return domain.FinalStandings{}
}

func waitForArchivedKey(t *testing.T, ctx context.Context, client *goredis.Client, pattern string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		keys, err := client.Keys(ctx, pattern).Result()
		if err != nil {
			t.Fatalf("redis keys: %v", err)
		}
		if len(keys) > 0 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("archived results never appeared under %s", pattern)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
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

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:   "quiz-1",
		Name: "Arithmetic Warmup",
		Questions: []domain.Question{
			{
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{Text: "3"},
					{Text: "4", Correct: true},
					{Text: "5"},
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
