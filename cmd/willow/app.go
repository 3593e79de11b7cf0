package main

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/willow/config"
	"github.com/Ramsey-B/willow/internal/handlers"
	"github.com/Ramsey-B/willow/pkg/access"
	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/familytree"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/invites"
	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/middleware"
	"github.com/Ramsey-B/willow/pkg/profiles"
	"github.com/Ramsey-B/willow/pkg/redis"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/repositories/memory"
	"github.com/Ramsey-B/willow/pkg/routes/health"
	"github.com/Ramsey-B/willow/pkg/startup"
	"github.com/Ramsey-B/willow/pkg/tracing"
	"github.com/Ramsey-B/willow/pkg/tracing/exporters"
)

type app struct {
	echo     *echo.Echo
	health   *health.Checker
	startup  *startup.Startup
	provider *sdktrace.TracerProvider
	logger   ectologger.Logger
}

// infra holds the connections opened by startup; nil fields are disabled integrations.
type infra struct {
	db       *sqlx.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
}

func newApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*app, error) {
	a := &app{
		health:  health.NewChecker(cfg.Version),
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		logger:  logger,
	}

	if cfg.OtelEnabled {
		exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OtelEndpoint,
			Protocol: cfg.OtelProtocol,
			Insecure: cfg.OtelInsecure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create OTLP exporter")
		}
		a.provider = tracing.NewProvider(cfg.AppName, exporter)
	}

	in := &infra{}
	a.addDependencies(cfg, in)
	if err := a.startup.Start(ctx); err != nil {
		_ = a.close(context.WithoutCancel(ctx))
		return nil, err
	}

	var repos *repositories.Repositories
	if in.db != nil {
		repos = repositories.NewPostgresRepositories(database.NewDatabaseInstance(in.db, logger), logger)
	} else {
		logger.Warn("Using the in-memory store; data will not survive a restart")
		repos = memory.New(logger)
	}

	var locks locking.Backend = locking.NewLocal(cfg.TreeLockTimeout)
	var profileStore profiles.Store = profiles.NewMemory()
	if in.redis != nil {
		locks = redis.NewTreeLocker(in.redis, cfg.TreeLockTTL, cfg.TreeLockTimeout)
		profileStore = redis.NewProfileCache(in.redis, cfg.ProfileCacheTTL)
	}

	var publisher events.Publisher
	if in.producer != nil {
		publisher = in.producer
	}
	emitter := events.NewEmitter(publisher, logger)

	var projector graph.Projector = graph.NopProjector{}
	if in.graph != nil {
		projector = graph.NewNeo4jProjector(in.graph, logger)
	}
	refresher := graph.NewRefresher(repos, projector, logger)

	resolver := access.NewResolver(repos.Trees, repos.Nodes, logger)
	engine := merging.NewEngine(repos, resolver, locks, emitter, refresher, logger)
	services := handlers.Services{
		Trees: familytree.NewService(familytree.Dependencies{
			Repos:     repos,
			Resolver:  resolver,
			Locks:     locks,
			Emitter:   emitter,
			Refresher: refresher,
			Profiles:  profileStore,
			Logger:    logger,
		}),
		Invites: invites.NewService(invites.Dependencies{
			Repos:     repos,
			Resolver:  resolver,
			Locks:     locks,
			Engine:    engine,
			Emitter:   emitter,
			Refresher: refresher,
			Logger:    logger,
		}),
		MergeRequests: merging.NewRequests(engine, repos, resolver, emitter, logger),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if a.provider != nil {
		e.Use(otelecho.Middleware(cfg.AppName, otelecho.WithTracerProvider(a.provider)))
	}
	e.Use(middleware.Context(!cfg.AuthEnabled))
	e.Use(middleware.Logger(logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api/v1")
	if cfg.AuthEnabled {
		auth, err := middleware.Authentication(ctx, logger, cfg.AuthIssuerURL, cfg.AuthClientID, profileStore)
		if err != nil {
			return nil, err
		}
		g.Use(auth)
	}
	g.Use(middleware.RequireIdentity())
	handlers.RegisterRoutes(g, services, logger)

	a.echo = e
	return a, nil
}

func (a *app) addDependencies(cfg *config.Config, in *infra) {
	if cfg.DatabaseDriver == config.DatabaseDriverPostgres {
		a.startup.AddDependency(&startup.Dependency{
			Name: "postgres",
			StartFunc: func(ctx context.Context) error {
				db, err := sqlx.Open("postgres", cfg.DatabaseDSN())
				if err != nil {
					return errors.Wrap(err, "failed to open postgres")
				}
				db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
				db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
				db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if err := db.PingContext(pingCtx); err != nil {
					_ = db.Close()
					return errors.Wrap(err, "failed to reach postgres")
				}
				in.db = db
				a.health.AddCheck("database", db.PingContext)
				return nil
			},
			StopFunc: func(context.Context) error {
				return in.db.Close()
			},
		})
		a.startup.AddDependency(&startup.Dependency{
			Name:     "migrations",
			Requires: []string{"postgres"},
			StartFunc: func(context.Context) error {
				migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
					MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
					Version:             uint(cfg.DatabaseMigrationVersion),
					Force:               cfg.DatabaseMigrationForce,
					AutoRollback:        cfg.DatabaseMigrationAutoRollback,
				})
				return migrations.MigratePostgres(in.db, cfg.DatabaseName)
			},
		})
	}

	if cfg.RedisEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFunc: func(context.Context) error {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.logger)
				if err != nil {
					return err
				}
				in.redis = client
				a.health.AddCheck("redis", client.Ping)
				return nil
			},
			StopFunc: func(context.Context) error {
				return in.redis.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				in.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				return in.producer.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				in.graph = client
				a.health.AddCheck("graph", client.VerifyConnectivity)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				return in.graph.Close(ctx)
			},
		})
	}
}

func (a *app) close(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	if a.provider != nil {
		if shutdownErr := a.provider.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}
	return err
}
