package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/handlers"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
	"github.com/ternarybob/tagforge/internal/queue"
	"github.com/ternarybob/tagforge/internal/services/backup"
	"github.com/ternarybob/tagforge/internal/services/bulkops"
	"github.com/ternarybob/tagforge/internal/services/engine"
	"github.com/ternarybob/tagforge/internal/services/logs"
	"github.com/ternarybob/tagforge/internal/services/recipes"
	"github.com/ternarybob/tagforge/internal/services/rules"
	"github.com/ternarybob/tagforge/internal/services/scheduler"
	"github.com/ternarybob/tagforge/internal/services/usage"
	"github.com/ternarybob/tagforge/internal/shopify"
	badgerstore "github.com/ternarybob/tagforge/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Shopify Admin API client (serves both single-resource and bulk
	// operation surfaces)
	ShopifyClient *shopify.Client

	// Durable queues and their worker pools
	WebhookQueue *queue.Manager
	BulkQueue    *queue.Manager
	CleanerQueue *queue.Manager
	webhookPool  *queue.WorkerPool
	bulkPool     *queue.WorkerPool
	cleanerPool  *queue.WorkerPool

	// Domain services
	LogService       *logs.Service
	RecipeService    *recipes.Service
	EngineService    *engine.Service
	RuleService      *rules.Service
	BackupService    *backup.Service
	UsageService     *usage.Service
	Orchestrator     *bulkops.Orchestrator
	SchedulerService *scheduler.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	WebhookHandler *handlers.WebhookHandler
	RecipeHandler  *handlers.RecipeHandler
	RuleHandler    *handlers.RuleHandler
	BulkHandler    *handlers.BulkHandler
	LogsHandler    *handlers.LogsHandler
	UsageHandler   *handlers.UsageHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initQueues(); err != nil {
		return nil, fmt.Errorf("failed to initialize queues: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()
	app.startWorkers()

	if err := app.SchedulerService.Start(cfg.Retention.Schedule); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("badger_path", cfg.Storage.Badger.Path).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initStorage() error {
	storageManager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initQueues creates the named queues over the shared Badger database.
// Each queue gets its own worker pool so slow bulk steps never starve
// webhook processing.
func (a *App) initQueues() error {
	manager, ok := a.StorageManager.(*badgerstore.Manager)
	if !ok {
		return fmt.Errorf("storage manager is not badger-backed (got %T)", a.StorageManager)
	}
	db := manager.DB().Store().Badger()

	visibility, err := a.Config.VisibilityTimeout()
	if err != nil {
		return err
	}

	a.WebhookQueue, err = queue.NewManager(db, models.QueueWebhooks, visibility, a.Config.Queue.MaxReceive)
	if err != nil {
		return err
	}
	a.BulkQueue, err = queue.NewManager(db, models.QueueBulk, visibility, a.Config.Queue.MaxReceive)
	if err != nil {
		return err
	}
	a.CleanerQueue, err = queue.NewManager(db, models.QueueCleaner, visibility, a.Config.Queue.MaxReceive)
	if err != nil {
		return err
	}

	a.Logger.Debug().
		Str("visibility_timeout", visibility.String()).
		Int("max_receive", a.Config.Queue.MaxReceive).
		Msg("Queues initialized")
	return nil
}

func (a *App) initServices() error {
	a.ShopifyClient = shopify.NewClient(
		a.Config.AccessToken,
		shopify.WithAPIVersion(a.Config.Shopify.APIVersion),
		shopify.WithRateLimit(a.Config.Shopify.RateLimit),
		shopify.WithLogger(a.Logger),
	)

	a.LogService = logs.NewService(a.StorageManager.LogStorage(), a.Logger)
	a.RecipeService = recipes.NewService(a.StorageManager.RecipeStorage(), a.Logger)
	a.BackupService = backup.NewService(a.StorageManager.BackupStorage(), a.Logger)
	a.UsageService = usage.NewService(a.StorageManager.UsageStorage(), a.Config, a.Logger)

	executor := engine.NewExecutor(a.ShopifyClient, a.Logger)
	a.EngineService = engine.NewService(a.StorageManager.RecipeStorage(), executor, a.LogService, a.Logger)
	a.RuleService = rules.NewService(a.StorageManager.RuleStorage(), executor, a.LogService, a.Logger)

	stepDelay, err := a.Config.StepDelay()
	if err != nil {
		return err
	}
	a.Orchestrator = bulkops.NewOrchestrator(
		a.StorageManager.JobStorage(),
		a.ShopifyClient,
		a.BackupService,
		a.UsageService,
		a.LogService,
		a.BulkQueue,
		stepDelay,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.CleanerQueue, a.Logger)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.WebhookHandler = handlers.NewWebhookHandler(a.WebhookQueue, a.Config.Shopify.WebhookSecret, a.Logger)
	a.RecipeHandler = handlers.NewRecipeHandler(a.RecipeService, a.EngineService, a.Logger)
	a.RuleHandler = handlers.NewRuleHandler(a.RuleService, a.Logger)
	a.BulkHandler = handlers.NewBulkHandler(a.Orchestrator, a.StorageManager.JobStorage(), a.BackupService, a.Logger)
	a.LogsHandler = handlers.NewLogsHandler(a.LogService, a.Logger)
	a.UsageHandler = handlers.NewUsageHandler(a.UsageService, a.Config, a.Logger)
}

// startWorkers registers message handlers and starts one worker pool
// per queue.
func (a *App) startWorkers() {
	pollInterval, err := a.Config.QueuePollInterval()
	if err != nil {
		pollInterval = time.Second
	}
	concurrency := a.Config.Queue.Concurrency

	a.webhookPool = queue.NewWorkerPool(a.WebhookQueue, concurrency, pollInterval, a.Logger)
	a.webhookPool.RegisterHandler(models.MessageTypeWebhook, a.handleWebhookEvent)
	a.webhookPool.Start()

	// Bulk steps are externally rate-limited; a single worker per queue
	// keeps the one-active-operation-per-shop behavior simple.
	a.bulkPool = queue.NewWorkerPool(a.BulkQueue, 1, pollInterval, a.Logger)
	a.bulkPool.RegisterHandler(models.MessageTypeBulkStep, a.Orchestrator.HandleStep)
	a.bulkPool.Start()

	a.cleanerPool = queue.NewWorkerPool(a.CleanerQueue, 1, pollInterval, a.Logger)
	a.cleanerPool.RegisterHandler(models.MessageTypePurge, a.handleRetentionPurge)
	a.cleanerPool.Start()
}

// handleWebhookEvent processes one queued webhook delivery: evaluates
// recipes for the event, then applies metafield and tagging rules to
// the resource. Recipe failures surface through the summary and audit
// log; only infrastructure errors trigger queue redelivery.
func (a *App) handleWebhookEvent(ctx context.Context, msg *models.QueueMessage) error {
	var event models.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Malformed payloads never deserialize; retrying cannot help.
		a.Logger.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping undecodable webhook message")
		return nil
	}

	summary, err := a.EngineService.HandleEvent(ctx, event)
	if err != nil {
		return err
	}
	if len(summary.Errors) > 0 {
		a.Logger.Warn().
			Str("shop", event.Shop).
			Str("topic", event.Topic).
			Strs("errors", summary.Errors).
			Msg("Some recipes failed for webhook event")
	}

	resourceType := engine.ResourceTypeForTopic(event.Topic)
	resourceID := engine.ExtractResourceID(event.Payload)
	if resourceID != "" {
		if err := a.RuleService.ApplyToResource(ctx, event.Shop, resourceType, resourceID, event.Payload); err != nil {
			a.Logger.Warn().
				Err(err).
				Str("shop", event.Shop).
				Str("resource_id", resourceID).
				Msg("Rule application failed for webhook event")
		}
	}
	return nil
}

// handleRetentionPurge removes audit records and backups older than
// their retention windows.
func (a *App) handleRetentionPurge(ctx context.Context, msg *models.QueueMessage) error {
	logRetention := time.Duration(a.Config.Retention.LogDays) * 24 * time.Hour
	backupRetention := time.Duration(a.Config.Retention.BackupDays) * 24 * time.Hour

	purgedLogs, err := a.LogService.Purge(ctx, logRetention)
	if err != nil {
		return fmt.Errorf("log purge failed: %w", err)
	}
	purgedBackups, err := a.BackupService.Purge(ctx, backupRetention)
	if err != nil {
		return fmt.Errorf("backup purge failed: %w", err)
	}

	a.Logger.Info().
		Int("logs", purgedLogs).
		Int("backups", purgedBackups).
		Msg("Retention purge complete")
	return nil
}

// Shutdown gracefully stops workers, the scheduler, queues, and storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application...")

	a.SchedulerService.Stop()
	a.webhookPool.Stop()
	a.bulkPool.Stop()
	a.cleanerPool.Stop()

	for _, q := range []*queue.Manager{a.WebhookQueue, a.BulkQueue, a.CleanerQueue} {
		if err := q.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue")
		}
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
