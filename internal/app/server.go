// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"subwatch-service/internal/config"
	"subwatch-service/internal/db"
	subscriptionHandler "subwatch-service/internal/handlers/subscription"
	webhookHandler "subwatch-service/internal/handlers/webhook"
	wsHandler "subwatch-service/internal/handlers/websocket"
	"subwatch-service/internal/middleware"
	"subwatch-service/internal/pkg/pending"
	"subwatch-service/internal/repository/postgres"
	"subwatch-service/internal/service/email"
	intentsvc "subwatch-service/internal/service/intent"
	"subwatch-service/internal/service/nlp"
	"subwatch-service/internal/service/reminder"
	subsvc "subwatch-service/internal/service/subscription"
	"subwatch-service/internal/telegram"
	"subwatch-service/internal/websocket"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer  *http.Server
	scheduler   *reminder.Scheduler
	hubCancel   context.CancelFunc
	pool        *pgxpool.Pool
	redisClient *redis.Client
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires the full dependency graph and begins serving. It returns
// when the HTTP listener stops.
func (s *Server) Start() error {
	ctx := context.Background()

	// ----- PostgreSQL -----
	pool, err := db.ConnectPostgres(ctx, s.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redisClient = redisClient
	s.logger.Info("connected to redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- Telegram -----
	bot := telegram.NewClient(s.cfg.BotToken)
	if s.cfg.WebhookURL != "" {
		if err := bot.SetWebhook(ctx, s.cfg.WebhookURL, s.cfg.WebhookSecret); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		s.logger.Info("webhook registered", zap.String("url", s.cfg.WebhookURL))
	}

	// ----- Repositories -----
	subRepo := postgres.NewSubscriptionRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// ----- NLP collaborator -----
	nlpCache := nlp.NewCache(redisClient)
	nlpClient := nlp.NewClient(
		s.cfg.NLPEndpoint,
		s.cfg.NLPAPIKey,
		s.cfg.NLPModel,
		s.cfg.NLPTimeout,
		nlpCache,
		s.logger,
	)

	// ----- Services -----
	normalizer := intentsvc.NewNormalizer(nlpClient, s.cfg.NLPMinConfidence, s.logger)
	subService := subsvc.NewSubscriptionService(subRepo, s.cfg.DefaultTimezone, s.logger)
	pendingStore := pending.NewStore(redisClient)

	// ----- Operator alerting -----
	hub := websocket.NewHub(s.logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	s.hubCancel = hubCancel
	go hub.Run(hubCtx)

	var mailer *email.Sender
	if s.cfg.AlertEmail != "" && s.cfg.SMTPHost != "" {
		mailer = email.NewSender(
			s.cfg.SMTPHost,
			s.cfg.SMTPPort,
			s.cfg.SMTPUser,
			s.cfg.SMTPPass,
			s.cfg.SMTPFromName,
			s.cfg.SMTPPort == "465",
		)
	}
	alerts := &alertFanout{hub: hub, mailer: mailer, alertEmail: s.cfg.AlertEmail, logger: s.logger}

	// ----- Reminder scheduler -----
	s.scheduler = reminder.NewScheduler(
		subRepo,
		&botDispatcher{bot: bot},
		alerts,
		reminder.Config{
			TickInterval: s.cfg.TickInterval,
			LeadTime:     s.cfg.ReminderLeadTime,
			MaxAttempts:  s.cfg.MaxDispatchAttempts,
			Workers:      s.cfg.SchedulerWorkers,
		},
		s.logger,
	)
	s.scheduler.Start()

	// ----- Handlers -----
	handlers := &Handlers{
		WebhookHandler: webhookHandler.NewWebhookHandler(
			bot, userRepo, subService, normalizer, pendingStore,
			s.cfg.WebhookSecret, s.cfg.DefaultTimezone, s.logger,
		),
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subService, s.logger),
		WSHandler:           wsHandler.NewWebSocketHandler(hub, s.cfg.OperatorWSToken, s.logger),
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
	)

	// ----- Router -----
	SetupRouter(s.engine, handlers)

	s.logger.Info("server listening", zap.String("addr", s.cfg.HTTPAddr))
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the scheduler first so no tick is cut off mid-dispatch,
// then drains HTTP and closes the pools.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.hubCancel != nil {
		s.hubCancel()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
