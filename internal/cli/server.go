package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizhost/internal/app"
	"quizhost/internal/config"
	fileloader "quizhost/internal/infra/file"
	"quizhost/internal/infra/memory"
	pgloader "quizhost/internal/infra/postgres"
	redisinfra "quizhost/internal/infra/redis"
	"quizhost/internal/logger"
	transport "quizhost/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz host",
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

	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Quiz definitions come from Postgres when configured, otherwise from
	// the YAML file. Redis caches loaded definitions across sessions when
	// available; the in-memory cache covers the single-node default.
	var quizRepo app.QuizRepository
	if redisClient != nil {
		var loader redisinfra.QuizLoader = fileloader.NewQuizLoader(cfg.Quiz.File)
		if pool != nil {
			loader = pgloader.NewQuizLoader(pool)
		}
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, cfg.Quiz.TTL)
	} else {
		var loader memory.QuizLoader = fileloader.NewQuizLoader(cfg.Quiz.File)
		if pool != nil {
			loader = pgloader.NewQuizLoader(pool)
		}
		quizRepo = memory.NewQuizRepository(loader, cfg.Quiz.TTL)
	}

	var archive app.ResultsArchiver
	if redisClient != nil {
		archive = redisinfra.NewResultsArchive(redisClient, cfg.Session.ResultsTTL)
	}

	host := app.NewHost(quizRepo, archive, app.SessionConfig{
		TimeLimit:  cfg.Session.TimeLimit,
		MaxPlayers: cfg.Session.MaxPlayers,
	}, log)
	wsHandler := transport.NewWSHandler(host, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/admin", wsHandler.ServeAdmin)
	mux.HandleFunc("/ws/player", wsHandler.ServePlayer)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: WebSocket connections outlive any single write;
		// per-frame deadlines are set at the connection level.
	}

	go func() {
		log.Info("starting quiz host", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
		log.Info("context canceled, shutting down")
	}

	host.Shutdown("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
