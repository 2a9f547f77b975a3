package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/storyfab/storyfab-api/internal/config"
	"github.com/storyfab/storyfab-api/internal/events"
	"github.com/storyfab/storyfab-api/internal/notification"
	"github.com/storyfab/storyfab-api/internal/platform/gemini"
	"github.com/storyfab/storyfab-api/internal/platform/postgres"
	"github.com/storyfab/storyfab-api/internal/service"
	"github.com/storyfab/storyfab-api/internal/service/auth"
	"github.com/storyfab/storyfab-api/internal/storage"
	"github.com/storyfab/storyfab-api/internal/store"
	"github.com/storyfab/storyfab-api/internal/task"
)

// Keepalive probing for registered push channels.
const (
	keepaliveCheckInterval = 15 * time.Second
	keepaliveIdleTimeout   = 30 * time.Second
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	userStore store.UserStore
	bookStore store.BookStore
	pageStore store.PageStore
	taskStore task.TaskStore

	// Services
	jwtService       auth.JWTService
	passwordHasher   auth.PasswordHasher
	passwordVerifier auth.PasswordVerifier
	bookService      service.BookService

	// Notification fan-out
	registry *notification.Registry
	notifier *notification.Notifier

	// Event system
	eventEmitter events.EventEmitter

	// Background processing
	taskRunner *task.TaskRunner
	sweeper    *task.Sweeper

	keepaliveCancel context.CancelFunc
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_expiry_minutes", cfg.Auth.TokenExpiryMinutes)

	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	app.passwordHasher = hasher
	app.passwordVerifier = hasher

	// Stores
	app.userStore = postgres.NewPostgresUserStore(db, logger)
	app.bookStore = postgres.NewPostgresBookStore(db, logger)
	app.pageStore = postgres.NewPostgresPageStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)

	// Artifact storage
	artifactStorage, err := storage.NewFileStore(cfg.Storage.BasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact storage: %w", err)
	}

	// Notification fan-out: push registry plus durable email fallback.
	app.registry = notification.NewRegistry(logger)
	app.notifier = notification.NewNotifier(app.registry, notification.NewLogEmailSender(logger), logger)

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	app.keepaliveCancel = cancel
	go app.registry.RunKeepalive(keepaliveCtx, keepaliveCheckInterval, keepaliveIdleTimeout)

	// Generation collaborators
	textGenerator, err := gemini.NewStoryGenerator(
		ctx,
		logger.With("component", "story_generator"),
		cfg.LLM,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize story generator: %w", err)
	}
	imageGenerator := gemini.NewPlaceholderImageRenderer(logger)
	logger.Info("Generation services initialized", "model", cfg.LLM.ModelName)

	// Pipeline wiring
	books := task.NewStoreBookDirectory(app.bookStore)
	pages := task.NewStorePageWriter(app.pageStore)
	users := task.NewStoreUserDirectory(app.userStore)
	progress := task.NewStatusPublisher(app.taskStore, app.registry, logger)

	factory, err := task.NewBookGenerationTaskFactory(task.BookGenerationDeps{
		Books:          books,
		Pages:          pages,
		Users:          users,
		TextGenerator:  textGenerator,
		ImageGenerator: imageGenerator,
		Storage:        artifactStorage,
		Progress:       progress,
		Notifier:       app.notifier,
		Logger:         logger,
		ImageFanOut:    cfg.Task.ImageFanOut,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task factory: %w", err)
	}

	// Task runner: install the reviver and hooks before Start so boot
	// recovery can requeue interrupted work.
	app.taskRunner = task.NewTaskRunner(app.taskStore, taskRunnerConfig(cfg.Task), logger)
	app.taskRunner.SetReviver(factory.Revive)
	app.taskRunner.SetHooks(task.NewNotificationHooks(
		app.taskStore,
		books,
		users,
		app.registry,
		app.notifier,
		logger,
	))
	if err := app.taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	// Event system: the book service emits generation requests, the handler
	// turns them into queued tasks.
	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(task.NewTaskFactoryEventHandler(factory, app.taskRunner, logger))
	app.eventEmitter = emitter

	app.bookService, err = service.NewBookService(
		app.bookStore,
		app.pageStore,
		app.userStore,
		app.taskStore,
		app.eventEmitter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create book service: %w", err)
	}

	// Recovery sweeper reclaims stale failed books and their artifacts.
	app.sweeper, err = task.NewSweeper(
		app.bookStore,
		app.pageStore,
		artifactStorage,
		time.Duration(cfg.Task.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Task.FailedRetentionHours)*time.Hour,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recovery sweeper: %w", err)
	}
	if err := app.sweeper.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recovery sweeper: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// taskRunnerConfig translates the loaded task settings into runner config.
func taskRunnerConfig(cfg config.TaskConfig) task.TaskRunnerConfig {
	return task.TaskRunnerConfig{
		WorkerCount:            cfg.WorkerCount,
		QueueSize:              cfg.QueueSize,
		MaxAttempts:            cfg.MaxAttempts,
		RetryDelay:             time.Duration(cfg.RetryDelaySeconds) * time.Second,
		SoftTimeLimit:          time.Duration(cfg.SoftTimeLimitMinutes) * time.Minute,
		HardTimeLimit:          time.Duration(cfg.HardTimeLimitMinutes) * time.Minute,
		StuckTaskAge:           time.Duration(cfg.StuckTaskAgeMinutes) * time.Minute,
		StuckTaskCheckInterval: time.Duration(cfg.StuckCheckIntervalMin) * time.Minute,
	}
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.keepaliveCancel != nil {
		app.keepaliveCancel()
	}

	if app.sweeper != nil {
		if err := app.sweeper.Stop(); err != nil {
			app.logger.Error("Error stopping recovery sweeper", "error", err)
		}
	}

	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
