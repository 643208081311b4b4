package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/chatflow-service/internal/api/http"
	"github.com/spec-kit/chatflow-service/internal/api/http/handlers"
	"github.com/spec-kit/chatflow-service/internal/config"
	"github.com/spec-kit/chatflow-service/internal/crypto"
	"github.com/spec-kit/chatflow-service/internal/events"
	"github.com/spec-kit/chatflow-service/internal/observability"
	"github.com/spec-kit/chatflow-service/internal/persistence"
	"github.com/spec-kit/chatflow-service/internal/repository"
	"github.com/spec-kit/chatflow-service/internal/service"
	"github.com/spec-kit/chatflow-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	cipher, err := crypto.NewBodyCipher(cfg.Crypto.MessageSecret)
	if err != nil {
		logger.Fatal("failed to init message cipher", zap.Error(err))
	}

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	chatFlowRepo := repository.NewChatFlowRepository(pool)
	channelInstanceRepo := repository.NewChannelInstanceRepository(pool)
	businessHoursRepo := repository.NewBusinessHoursRepository(pool)
	ticketLogRepo := repository.NewTicketLogRepository(pool)
	queueRepo := repository.NewQueueRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	contactRepo := repository.NewContactRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()

	messageStore := service.NewMessageStore(cfg.App, service.MessageStoreDependencies{
		MessageRepo: messageRepo,
		TicketRepo:  ticketRepo,
		Cipher:      cipher,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	ticketGate := service.NewTicketGate(cfg.Flow, service.TicketGateDependencies{
		TicketRepo: ticketRepo,
		Locker:     redis,
		Logger:     logger,
	})

	hoursGate := service.NewBusinessHoursGate(cfg.Flow, service.BusinessHoursGateDependencies{
		HoursRepo:  businessHoursRepo,
		TicketRepo: ticketRepo,
		Store:      messageStore,
		Logger:     logger,
	})

	flowEngine := service.NewFlowEngine(cfg.Flow, service.FlowEngineDependencies{
		TicketRepo:   ticketRepo,
		ChatFlowRepo: chatFlowRepo,
		QueueRepo:    queueRepo,
		UserRepo:     userRepo,
		LogRepo:      ticketLogRepo,
		Store:        messageStore,
		Hours:        hoursGate,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})

	inboundService := service.NewInboundService(service.InboundDependencies{
		ChannelInstanceRepo: channelInstanceRepo,
		Contacts:            service.NewRepositoryContactResolver(contactRepo),
		Gate:                ticketGate,
		Store:               messageStore,
		Engine:              flowEngine,
		Logger:              logger,
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics)
	webhookHandler := handlers.NewWebhookHandler(inboundService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   healthHandler,
		Webhooks: webhookHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
