package main

import (
	"github.com/campuspool/backend/internal/config"
	"github.com/campuspool/backend/internal/handlers"
	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/services"
	"github.com/campuspool/backend/internal/store"
	"github.com/campuspool/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	hub            *services.PartyEventHub
	emitter        *services.Emitter
	partyService   *services.PartyService
	requestService *services.RequestService
	cascadeService *services.CascadeService
	reconciler     *services.Reconciler
	taskQueue      services.TaskQueue
	worker         *services.Worker
	partyHandler   *handlers.PartyHandler
	requestHandler *handlers.RequestHandler
	streamHandler  *handlers.StreamHandler
	healthHandler  *handlers.HealthHandler
	logHandler     *handlers.SystemLogHandler
}

// bootstrap initializes all application dependencies: database, store,
// services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Durable operation log
	services.InitSystemLogger(models.GetDB())

	st := store.NewGorm(models.GetDB())

	// Event fan-out: SSE always; webhook only when configured
	hub := services.NewPartyEventHub()
	emitter := services.NewEmitter(hub)
	if notifier := services.NewWebhookNotifier(&cfg.Notify); notifier != nil {
		emitter.Register(notifier)
		logger.Infof("Webhook notifier enabled: %s", cfg.Notify.WebhookURL)
	}

	// Task queue (uses Redis if enabled, otherwise processes inline)
	taskQueue := services.InitTaskQueue(cfg)

	partyService := services.NewPartyService(st, taskQueue, emitter)
	requestService := services.NewRequestService(st, partyService, emitter)
	cascadeService := services.NewCascadeService(st, emitter)

	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(cascadeService.Process)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(cascadeService.Process)
			worker.Start()
		}
	}

	// Reconciliation sweep
	reconciler := services.NewReconciler(st)
	if cfg.Reconcile.Enabled {
		if err := reconciler.Start(cfg.Reconcile.CronSpec); err != nil {
			logger.Warn().Err(err).Msg("Failed to start reconciler")
		}
	}

	return &appServices{
		hub:            hub,
		emitter:        emitter,
		partyService:   partyService,
		requestService: requestService,
		cascadeService: cascadeService,
		reconciler:     reconciler,
		taskQueue:      taskQueue,
		worker:         worker,
		partyHandler:   handlers.NewPartyHandler(partyService),
		requestHandler: handlers.NewRequestHandler(requestService),
		streamHandler:  handlers.NewStreamHandler(hub),
		healthHandler:  handlers.NewHealthHandler(hub),
		logHandler:     handlers.NewSystemLogHandler(services.NewSystemLogService(models.GetDB())),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.reconciler.Stop()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
