package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/config"
	"green-assessment-service/internal/infra/memory"
	pgloader "green-assessment-service/internal/infra/postgres"
	redisinfra "green-assessment-service/internal/infra/redis"
	"green-assessment-service/internal/llm"
	"green-assessment-service/internal/logging"
	"green-assessment-service/internal/metrics"
	"green-assessment-service/internal/questionnaire"
	transport "green-assessment-service/internal/transport/http"
)

const (
	defaultPort       = "8080"
	defaultSessionTTL = 2 * time.Hour
	sweepInterval     = 5 * time.Minute
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
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
	logger := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer func() { _ = logger.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, true, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = defaultPort
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis_unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, defaultSessionTTL)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	bundled, err := questionnaire.Default()
	if err != nil {
		return err
	}
	var loader memory.QuestionnaireLoader = memory.NewStaticQuestionnaireLoader(bundled)
	if pool != nil {
		loader = pgloader.NewQuestionnaireLoader(pool)
	}

	questionnaireTTL := config.TTLDuration(cfg.Questionnaire.TTL, 10*time.Minute)
	var questionnaires app.QuestionnaireRepository
	if redisClient != nil {
		questionnaires = redisinfra.NewQuestionnaireRepository(redisClient, loader, questionnaireTTL)
	} else {
		questionnaires = memory.NewQuestionnaireRepository(loader, questionnaireTTL)
	}

	var store interface {
		app.SessionRepository
		sessionSweeper
	}
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		store = memory.NewSessionStore()
	}
	go sweepSessions(ctx, store, sessionTTL, logger)

	client := newLLMClient(cfg)
	if !client.Enabled() {
		logger.Warn("ai_api_key_missing", zap.String("hint", "set API_KEY to enable recommendations and plans"))
	}

	questionnaireID := cfg.Questionnaire.ID
	if questionnaireID == "" {
		questionnaireID = bundled.ID
	}

	m := metrics.New()
	service := app.NewAssessmentService(
		store,
		questionnaires,
		llm.NewRecommender(client),
		llm.NewPlanner(client),
		questionnaireID,
		app.WithLogger(logger),
		app.WithMetrics(m),
	)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterConfig{
			Service:        service,
			Metrics:        m,
			Logger:         logger,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadTimeout: 15 * time.Second,
		// the synchronous recommendations endpoint holds the response open for the whole stream
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		logger.Info("server_starting", zap.String("port", finalPort), zap.String("questionnaire", questionnaireID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("server_shutting_down")
	case <-ctx.Done():
		logger.Info("server_shutting_down", zap.String("reason", "context canceled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLLMClient(cfg config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		BaseURL:           cfg.AI.BaseURL,
		APIKey:            cfg.AI.APIKey,
		Model:             cfg.AI.Model,
		Timeout:           config.TTLDuration(cfg.AI.Timeout, 60*time.Second),
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	})
}

type sessionSweeper interface {
	Sweep(cutoff time.Time) int
	Len() int
}

// sweepSessions evicts sessions idle for longer than ttl from the process.
func sweepSessions(ctx context.Context, store sessionSweeper, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Sweep(now.Add(-ttl)); n > 0 {
				logger.Info("sessions_swept", zap.Int("removed", n), zap.Int("remaining", store.Len()))
			}
		}
	}
}
