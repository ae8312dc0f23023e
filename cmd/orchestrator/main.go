// Package main is the entry point for the Orchestrator service: the core
// message pipeline that turns an inbound platform event into an assistant
// turn against an isolated git worktree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	"github.com/sqwda22/archon-orchestrator/internal/command"
	"github.com/sqwda22/archon-orchestrator/internal/common/config"
	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/events"
	"github.com/sqwda22/archon-orchestrator/internal/isolation"
	"github.com/sqwda22/archon-orchestrator/internal/orchestrator"
	"github.com/sqwda22/archon-orchestrator/internal/router"
	"github.com/sqwda22/archon-orchestrator/internal/session"
	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/store/postgres"
	"github.com/sqwda22/archon-orchestrator/internal/store/sqlite"
	"github.com/sqwda22/archon-orchestrator/internal/workflow"
)

// unconfiguredAssistants is the AssistantResolver used until a real
// CLI-backed assistant integration is wired up for a deployment; it fails
// closed rather than silently no-opping.
type unconfiguredAssistants struct{}

func (unconfiguredAssistants) Resolve(assistantType string) (assistant.Client, error) {
	return nil, fmt.Errorf("no assistant client configured for type %q", assistantType)
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Orchestrator service...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Open the configured storage backend
	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open storage backend", zap.Error(err))
	}
	defer closeStore()
	log.Info("Connected to storage backend", zap.String("driver", cfg.Database.Driver))

	// 5. Connect to the event bus (NATS if configured, in-memory otherwise)
	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer closeBus()
	log.Info("Event bus ready", zap.Bool("nats", eventBus.NATS != nil))

	// 6. Initialize the isolation manager and its cleanup scheduler
	isoCfg := isolation.Config{
		BasePath:        cfg.Isolation.BasePath,
		DefaultBranch:   cfg.Isolation.DefaultBranch,
		CleanupInterval: time.Duration(cfg.Isolation.CleanupInterval) * time.Second,
		IdleThreshold:   time.Duration(cfg.Isolation.IdleThreshold) * time.Second,
		MaxPerCodebase:  cfg.Isolation.MaxPerCodebase,
		SeedFiles:       isolation.DefaultConfig().SeedFiles,
		FetchTimeout:    30 * time.Second,
	}
	isoManager, err := isolation.NewManager(isoCfg, repo, log)
	if err != nil {
		log.Fatal("Failed to initialize isolation manager", zap.Error(err))
	}
	isoManager = isoManager.WithPublisher(events.NewPublisher(eventBus.Bus, "isolation", log))
	scheduler := isolation.NewScheduler(isoManager, repo, isoCfg, log, isolation.NewStoreReferenceChecker(repo))
	go scheduler.Run(ctx)
	log.Info("Isolation manager and cleanup scheduler started")

	// 7. Load workflow definitions
	workflowDir := os.Getenv("ARCHON_WORKFLOW_DIR")
	if workflowDir == "" {
		workflowDir = filepath.Join(".", "workflows")
	}
	defs, loadErrs := workflow.LoadDir(workflowDir)
	for name, loadErr := range loadErrs {
		log.Warn("failed to load workflow definition", zap.String("file", name), zap.Error(loadErr))
	}
	if _, ok := defs["assist"]; !ok {
		log.Fatal("no catch-all \"assist\" workflow found; the router's fallback invariant requires one", zap.String("dir", workflowDir))
	}
	log.Info("Loaded workflow definitions", zap.Int("count", len(defs)))

	// 8. Wire the session manager, workflow engine, and router
	sessions := session.NewManager(repo, log).WithPublisher(events.NewPublisher(eventBus.Bus, "session", log))
	engine := workflow.NewEngine(repo, sessions, workflow.FileCommandSource{}, log).
		WithPublisher(events.NewPublisher(eventBus.Bus, "workflow", log))
	r := router.New(defs, cfg.Router.FallbackWorkflow, log)

	// 9. Wire the command handler
	cmds := command.NewHandler(repo, isoManager, r, log)

	// 10. Assemble the orchestrator. The classifier and assistant resolver
	// are deployment-specific integration points: a real build wires a
	// concrete assistant.Client per assistant type and a classifier that
	// issues a short turn through it.
	assistants := unconfiguredAssistants{}
	classify := func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("no classifier configured")
	}
	orch := orchestrator.New(repo, isoManager, engine, r, cmds, assistants, classify, log)
	_ = orch // wired into the platform integration layer's inbound handler

	log.Info("Orchestrator assembled and ready")

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Orchestrator service...")
	cancel()
	log.Info("Orchestrator service stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Repository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		repo, err := postgres.Open(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	default:
		repo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
}
