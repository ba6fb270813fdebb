package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"eventhub/internal/api"
	"eventhub/internal/config"
	"eventhub/internal/constants"
	"eventhub/internal/hub"
	"eventhub/internal/logger"
	"eventhub/internal/monitoring"
	"eventhub/internal/notify"
	"eventhub/internal/queue"
	"eventhub/internal/subscription"
	"eventhub/pkg/bootstrap"
	"eventhub/pkg/health"
	"eventhub/pkg/logging"
	"eventhub/pkg/metrics"
	"eventhub/pkg/middleware"
	"eventhub/pkg/migrations"
	"eventhub/pkg/models"
	"eventhub/pkg/ratelimit"
	"eventhub/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	hub            *hub.Hub
	health         *health.CheckerRegistry
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if a.Config.Broker.Enabled() {
		if err := a.InitBroker(serviceName); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	}

	if err := a.initHub(ctx); err != nil {
		return fmt.Errorf("failed to initialize hub: %w", err)
	}

	metrics.RegisterHubMetrics()
	metrics.RegisterAPIMetrics()
	if a.Config.Broker.Enabled() {
		metrics.RegisterBrokerMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db
	if db != nil {
		a.health.Register(health.NewPostgreSQLChecker(db))
		if a.Config.Database.RunMigrations {
			if err := migrations.RunPostgres(db, a.Config.Database.MigrationsDir); err != nil {
				return err
			}
			a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied", "dir", a.Config.Database.MigrationsDir)
		}
	}

	if a.Config.Queue.Dedup.Backend == "redis" {
		client, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redisClient = client
		a.health.Register(health.NewRedisChecker(client))
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	mongoClient, err := a.dbConnector.InitMongoDB(initCtx)
	if err != nil {
		if a.Config.Monitoring.ArchiveEnabled {
			return err
		}
		a.Logger.WarnwCtx(initCtx, "MongoDB connection failed, continuing without snapshot archive", "error", err)
	}
	if mongoClient != nil {
		a.mongoClient = mongoClient
		a.health.Register(health.NewMongoDBChecker(mongoClient))
	}
	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(name)
}

func (a *App) initHub(ctx context.Context) error {
	opts := hub.Options{Producer: a.Producer}

	if a.redisClient != nil {
		opts.Deduper = queue.NewRedisDeduper(a.redisClient, a.Config.Queue.Dedup, a.Config.CircuitBreaker, a.Logger)
	}

	if a.db != nil {
		opts.LifecycleSinks = []notify.Sink[models.LifecycleEvent]{subscription.NewPostgresAuditSink(a.db)}
		if a.Config.Monitoring.RuleStore == "postgres" {
			opts.Rules = monitoring.NewPostgresRuleRepository(a.db)
		}
	}

	if a.mongoClient != nil && a.Config.Monitoring.ArchiveEnabled {
		db := a.mongoDatabase()
		retention := time.Duration(a.Config.Database.MongoDB.SnapshotRetentionHrs) * time.Hour
		if err := migrations.EnsureSnapshotCollection(ctx, db, monitoring.SnapshotCollection, retention); err != nil {
			return err
		}
		opts.Archive = monitoring.NewMongoArchive(db)
	}

	sampler, err := monitoring.NewProcessSampler()
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Process metrics unavailable, falling back to runtime stats", "error", err)
	} else {
		opts.Resources = sampler
	}

	h, err := hub.New(a.Config, opts, a.Logger)
	if err != nil {
		return err
	}
	a.hub = h
	a.health.Register(health.NewScoreChecker(func() float64 {
		return h.Monitor.Health(context.Background()).Score
	}))
	return nil
}

func (a *App) initServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	api.NewHandler(a.hub, a.Config.Connection, a.Logger).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		h := a.health.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Websocket connections outlive any request timeout, so only the header
	// read is bounded here.
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: a.Config.Server.ReadTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if ingestTopic := a.Config.Broker.Kafka.IngestTopic; a.Consumer != nil && ingestTopic != "" {
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting event ingest consumer", "topic", ingestTopic)
			return a.Consumer.Consume(gCtx, ingestTopic, a.handleIngest)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// handleIngest publishes an event read from the ingest topic.
func (a *App) handleIngest(ctx context.Context, event models.Event) error {
	published, err := a.hub.Publish(ctx, event)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Ingested event rejected", "error", err, "topic", event.Topic)
		return err
	}
	a.Logger.DebugwCtx(logging.WithEventID(ctx, published.ID), "Ingested event published", "topic", published.Topic)
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, serviceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down hub service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.hub != nil {
			if err := a.hub.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("hub stop error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
