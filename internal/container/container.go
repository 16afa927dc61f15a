// Package container provides dependency injection.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/costlens/backend/internal/anomaly"
	"github.com/costlens/backend/internal/cache"
	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/forecast"
	"github.com/costlens/backend/internal/jobs"
	"github.com/costlens/backend/internal/notification"
	"github.com/costlens/backend/internal/provider"
	"github.com/costlens/backend/internal/provider/aws"
	"github.com/costlens/backend/internal/provider/azure"
	"github.com/costlens/backend/internal/provider/digitalocean"
	"github.com/costlens/backend/internal/recommend"
	"github.com/costlens/backend/internal/repository"
	"github.com/costlens/backend/internal/syncer"
)

// Container holds all application dependencies.
type Container struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	costCache cache.Cache
	registry  *provider.Registry
	scheduler *jobs.Scheduler

	// Repositories
	accountRepo        repository.AccountRepository
	costRepo           repository.CostRepository
	anomalyRepo        repository.AnomalyRepository
	scenarioRepo       repository.ScenarioRepository
	recommendationRepo repository.RecommendationRepository
	userRepo           repository.UserRepository

	// Services
	resolver        *credential.Resolver
	syncer          *syncer.Syncer
	anomalyEngine   *anomaly.Engine
	forecastEngine  *forecast.Engine
	recommendEngine *recommend.Engine
	notifService    *notification.Service
}

// New creates and wires the dependency container.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		cfg:    cfg,
		logger: logger,
	}

	// Database
	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	c.db = db
	logger.Info("database connected", "host", cfg.Database.Host, "database", cfg.Database.Name)

	if err := repository.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	// Repositories
	c.accountRepo = repository.NewPostgresAccountRepository(db)
	c.costRepo = repository.NewPostgresCostRepository(db)
	c.anomalyRepo = repository.NewPostgresAnomalyRepository(db)
	c.scenarioRepo = repository.NewPostgresScenarioRepository(db)
	c.recommendationRepo = repository.NewPostgresRecommendationRepository(db)
	c.userRepo = repository.NewPostgresUserRepository(db)

	// Cost data cache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.costCache = redisCache
		logger.Info("redis cache connected", "addr", cfg.Redis.Addr())
	} else {
		c.costCache = cache.NewMemoryCache()
		logger.Info("using in-process cost cache")
	}

	// Credential resolver with the service's own STS client.
	stsClient, err := newSTSClient(ctx)
	if err != nil {
		logger.Warn("resolver STS client unavailable, automated connections will fail", "error", err)
	}
	c.resolver = credential.NewResolver(stsClient, cfg.EncryptionKey, cfg.Sync.SessionDuration, logger)

	// Provider adapters
	c.registry = provider.NewRegistry()
	c.registry.Register(aws.NewAdapter(logger))
	c.registry.Register(azure.NewAdapter(logger))
	c.registry.Register(digitalocean.NewAdapter(logger))
	logger.Info("provider adapters registered", "types", c.registry.Types())

	// Notifications
	c.notifService = notification.NewService(cfg.Notification, logger)

	// Engines
	c.anomalyEngine = anomaly.NewEngine(c.costRepo, c.anomalyRepo, c.userRepo, c.notifService, cfg.Anomaly, logger)
	c.forecastEngine = forecast.NewEngine(c.costRepo, c.scenarioRepo, cfg.Forecast, logger)
	c.recommendEngine = recommend.NewEngine(c.recommendationRepo, c.costRepo, c.resolver, logger)

	// Sync orchestrator with post-sync side effects.
	c.syncer = syncer.New(c.registry, c.resolver, c.accountRepo, c.costRepo, c.costCache, c.notifService, cfg.Sync, logger)
	c.syncer.AddHook(c.anomalyEngine)
	c.syncer.AddHook(c.recommendEngine)

	// Background jobs
	c.scheduler = jobs.NewScheduler(logger)
	if err := jobs.RegisterAll(c.scheduler, cfg.Jobs, c.syncer, c.anomalyEngine, c.recommendEngine, c.accountRepo, logger); err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	return c, nil
}

func newSTSClient(ctx context.Context) (credential.STSAPI, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return sts.NewFromConfig(awsCfg), nil
}

// Start starts background processing.
func (c *Container) Start() {
	c.scheduler.Start()
}

// Stop shuts down background processing and closes connections.
func (c *Container) Stop() {
	c.scheduler.Stop()
	if closer, ok := c.costCache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("failed to close cache", "error", err)
		}
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("failed to close database", "error", err)
	}
}

func (c *Container) Config() *config.Config                              { return c.cfg }
func (c *Container) Logger() *slog.Logger                                { return c.logger }
func (c *Container) DB() *sql.DB                                         { return c.db }
func (c *Container) AccountRepository() repository.AccountRepository     { return c.accountRepo }
func (c *Container) CostRepository() repository.CostRepository           { return c.costRepo }
func (c *Container) Syncer() *syncer.Syncer                              { return c.syncer }
func (c *Container) AnomalyEngine() *anomaly.Engine                      { return c.anomalyEngine }
func (c *Container) ForecastEngine() *forecast.Engine                    { return c.forecastEngine }
func (c *Container) RecommendEngine() *recommend.Engine                  { return c.recommendEngine }
func (c *Container) NotificationService() *notification.Service          { return c.notifService }
func (c *Container) Scheduler() *jobs.Scheduler                          { return c.scheduler }
