package app

import (
	"context"
	"fmt"
	"os"

	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/clients/redis"
	"github.com/polyglotta/polyglotta-backend/internal/db"
	"github.com/polyglotta/polyglotta-backend/internal/jobs/analysis"
	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/observability"
	"github.com/polyglotta/polyglotta-backend/internal/platform/neo4jdb"
	"github.com/polyglotta/polyglotta-backend/internal/platform/vecstore"
	"github.com/polyglotta/polyglotta-backend/internal/services"
	"github.com/polyglotta/polyglotta-backend/internal/temporalx"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Vectors  vecstore.Store

	graph        *neo4jdb.Client
	cache        redis.EmbedCache
	temporal     temporalsdkclient.Client
	worker       worker.Worker
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "polyglotta",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := pg.DB()

	store, err := NewVectorStore(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	graph, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Prerequisite graph mirror unavailable", "error", err.Error())
		graph = nil
	}

	cache := newEmbedCache(log)

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(log, reposet, store, graph, cache)
	if err != nil {
		log.Sync()
		return nil, err
	}

	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init temporal: %w", err)
	}

	var dispatcher services.AnalysisDispatcher
	var analysisWorker worker.Worker
	if temporalClient != nil {
		dispatcher = analysis.NewTemporalDispatcher(temporalClient, log)
		acts := analysis.NewActivities(serviceset.Analysis, log)
		analysisWorker = analysis.NewWorker(temporalClient, acts, log)
	} else {
		dispatcher = analysis.NewInProcessDispatcher(serviceset.Analysis, log)
	}
	serviceset.Chat = services.NewChatService(reposet.Conversation, reposet.ChatMessage, dispatcher, log)

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Vectors:      store,
		graph:        graph,
		cache:        cache,
		temporal:     temporalClient,
		worker:       analysisWorker,
		otelShutdown: otelShutdown,
	}

	if cfg.SeedCatalogPath != "" {
		count, err := serviceset.Seed.SeedFromFile(context.Background(), cfg.SeedCatalogPath)
		if err != nil {
			log.Warn("Seed catalog load failed", "path", cfg.SeedCatalogPath, "error", err.Error())
		} else {
			log.Info("Seed catalog loaded at startup", "path", cfg.SeedCatalogPath, "concepts", count)
		}
	}

	return a, nil
}

// Start runs the analysis worker when Temporal is configured. Blocks until
// the worker is interrupted; without Temporal it returns immediately.
func (a *App) Start() error {
	if a.worker == nil {
		a.Log.Info("No Temporal worker configured; analysis runs in-process")
		return nil
	}
	a.Log.Info("Starting analysis worker...")
	return a.worker.Run(worker.InterruptCh())
}

func (a *App) Stop(ctx context.Context) {
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.temporal != nil {
		a.temporal.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.graph != nil {
		_ = a.graph.Close(ctx)
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	a.Log.Sync()
}
