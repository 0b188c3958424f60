package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	matchrepo "github.com/Ramsey-B/clover/internal/repositories/match"
	profilerepo "github.com/Ramsey-B/clover/internal/repositories/profile"
	questionnairerepo "github.com/Ramsey-B/clover/internal/repositories/questionnaire"
	profilesvc "github.com/Ramsey-B/clover/internal/services/profile"
	questionnairesvc "github.com/Ramsey-B/clover/internal/services/questionnaire"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/embedding"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/featuremap"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/redis"
	matchroutes "github.com/Ramsey-B/clover/pkg/routes/match"
	profileroutes "github.com/Ramsey-B/clover/pkg/routes/profile"
	questionnaireroutes "github.com/Ramsey-B/clover/pkg/routes/questionnaire"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/vectorsearch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		logger, sync, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

// backends holds the connections opened at startup
type backends struct {
	db        database.DB
	redis     *redis.Client
	publisher events.Publisher
}

func startBackends(cfg *config.Config, logger ectologger.Logger, b *backends) *startup.Startup {
	s := startup.New(logger, cfg.StartupMaxAttempts)

	s.Add(startup.Func("database", nil,
		func(ctx context.Context) error {
			db, err := database.Connect(ctx, cfg.Database(), logger)
			if err != nil {
				return err
			}
			b.db = db
			return nil
		},
		func(context.Context) error { return b.db.Close() },
	))

	if cfg.DatabaseMigrateOnStart {
		s.Add(startup.Func("migrations", []string{"database"},
			func(context.Context) error {
				migrations := database.NewMigrationService(logger, &database.MigrationConfig{
					MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				})
				return migrations.MigratePostgres(b.db.SQLDB(), cfg.DatabaseName)
			}, nil,
		))
	}

	if cfg.RedisEnabled {
		s.Add(startup.Func("redis", nil,
			func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, cfg.Redis(), logger)
				if err != nil {
					return err
				}
				b.redis = client
				return nil
			},
			func(context.Context) error { return b.redis.Close() },
		))
	}

	if cfg.KafkaEnabled {
		var producer *kafka.Producer
		s.Add(startup.Func("kafka", nil,
			func(context.Context) error {
				producer = kafka.NewProducer(cfg.Kafka(), logger)
				b.publisher = producer
				return nil
			},
			func(context.Context) error { return producer.Close() },
		))
	}

	return s
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing(), logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	features, err := featuremap.Load(cfg.FeatureMapPath, logger)
	if err != nil {
		return err
	}

	var b backends
	deps := startBackends(cfg, logger, &b)
	if err := deps.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = deps.Stop(stopCtx)
	}()

	checker := health.NewChecker(cfg.Version)
	checker.Register("database", b.db, true)

	var locker redis.KeyLocker = redis.NoopLocker{}
	if b.redis != nil {
		locker = redis.NewLocker(b.redis, "lock:", cfg.EmbeddingLockTTL, cfg.EmbeddingLockWait)
		checker.Register("redis", health.PingFunc(b.redis.Ping), true)
	}

	var emitter interface {
		profilesvc.Emitter
		matching.Emitter
	} = events.Noop{}
	if b.publisher != nil {
		emitter = events.NewEmitter(b.publisher, logger)
	}

	profiles := profilerepo.NewRepository(b.db, logger)
	matches := matchrepo.NewRepository(b.db, logger)
	questionnaires := questionnairerepo.NewRepository(b.db, logger)

	engine := scoring.NewEngine()
	builder := embedding.NewBuilder(features, logger)
	if missing := builder.MissingScoreKeys(engine.Categories()); len(missing) > 0 {
		logger.WithFields(map[string]any{
			"feature_map": features.Version(),
			"keys":        missing,
		}).Warn("Feature map has no slot for some test scores")
	}
	profileService := profilesvc.NewService(profiles, b.db, builder, locker, emitter, logger)
	questionnaireService := questionnairesvc.NewService(questionnaires, profiles, engine, profileService, logger)

	searcher := vectorsearch.NewPGVectorSearcher(b.db, logger, cfg.VectorSearchTimeout)
	pipeline := matching.NewPipeline(profiles, matches, searcher, emitter, cfg.Matching(), logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger, "/api/v1/health/live", "/api/v1/health/ready", "/metrics"))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	profileroutes.NewHandler(profileService).RegisterRoutes(api)
	questionnaireroutes.NewHandler(questionnaireService).RegisterRoutes(api)
	matchroutes.NewHandler(pipeline, matches).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting %s on %s", cfg.AppName, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	checker.SetReady(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
