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

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pginfra "livequiz-service/internal/infra/postgres"
	redisinfra "livequiz-service/internal/infra/redis"
	transport "livequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz engine server",
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
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader redisinfra.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	engineOpts := app.Options{
		TickInterval: config.TTLDuration(cfg.Engine.TickInterval, time.Second),
		MailboxSize:  cfg.Engine.MailboxSize,
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL, engineOpts)
	} else {
		store = memory.NewSessionStore(engineOpts)
	}

	service := app.NewQuizService(store, quizRepo)
	if archiver := buildArchiver(pool, redisClient, redisTTL); archiver != nil {
		service = service.WithArchiver(archiver)
	}

	var verifier auth.Verifier = auth.NoopVerifier{}
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	}

	wsHandler := transport.NewWSHandler(service, verifier)
	restHandler := transport.NewRESTHandler(service, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	restHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting livequiz service on :%s", finalPort)
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

// buildArchiver picks where final results go: Postgres when configured,
// with a Redis copy alongside for the recent-results dashboard.
func buildArchiver(pool *pgxpool.Pool, redisClient *redis.Client, ttl time.Duration) app.ResultsArchiver {
	var archivers []app.ResultsArchiver
	if pool != nil {
		archivers = append(archivers, pginfra.NewResultsWriter(pool))
	}
	if redisClient != nil {
		archivers = append(archivers, redisinfra.NewResultsArchiver(redisClient, ttl))
	}
	switch len(archivers) {
	case 0:
		return nil
	case 1:
		return archivers[0]
	default:
		return multiArchiver(archivers)
	}
}

type multiArchiver []app.ResultsArchiver

func (m multiArchiver) ArchiveResults(ctx context.Context, res domain.SessionResults) error {
	var firstErr error
	for _, a := range m {
		if err := a.ArchiveResults(ctx, res); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sampleQuizzes seeds the in-memory loader for development runs without a
// database. One instructor-paced quiz and one self-paced practice quiz.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:       "quiz-live-demo",
			Title:    "General Knowledge Sprint",
			JoinCode: "DEMO01",
			Mode:     domain.ModeLive,
			Questions: []domain.Question{
				{
					ID:   "q1",
					Type: domain.QuestionMultipleChoice,
					Text: "What is 2 + 2?",
					Choices: []domain.Choice{
						{Key: "a", Text: "3"},
						{Key: "b", Text: "4"},
						{Key: "c", Text: "5"},
					},
					CorrectAnswer:    "b",
					Points:           100,
					TimeLimitSeconds: 20,
					TimeBonus:        true,
				},
				{
					ID:               "q2",
					Type:             domain.QuestionTrueFalse,
					Text:             "The Pacific is the largest ocean.",
					CorrectAnswer:    "TRUE",
					Points:           50,
					TimeLimitSeconds: 15,
				},
			},
			Settings: domain.Settings{
				RequireFullscreen:      true,
				MaxViolations:          3,
				ViolationPenaltyPoints: 10,
				FullscreenExitAction:   domain.ActionPause,
				AltTabAction:           domain.ActionWarn,
				ShowLeaderboard:        true,
				ShowCorrectAnswers:     true,
				AutoAdvance:            false,
			},
		},
		{
			ID:       "quiz-practice-demo",
			Title:    "Go Practice Set",
			JoinCode: "PRAC01",
			Mode:     domain.ModeSelfPaced,
			Questions: []domain.Question{
				{
					ID:            "p1",
					Type:          domain.QuestionShortAnswer,
					Text:          "Which keyword starts a goroutine?",
					CorrectAnswer: "go",
					Points:        50,
				},
				{
					ID:          "p2",
					Type:        domain.QuestionCoding,
					Text:        "Implement Add(a, b int) int.",
					Language:    "go",
					StarterCode: "func Add(a, b int) int {\n\treturn 0\n}\n",
					TestCases: []domain.TestCase{
						{Input: "1 2", Expected: "3"},
						{Input: "-1 1", Expected: "0"},
					},
					Points: 100,
				},
			},
			Settings: domain.Settings{
				ShowLeaderboard:    true,
				ShowCorrectAnswers: true,
				AllowLateJoin:      true,
			},
		},
	}
}
