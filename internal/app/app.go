package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkivite/knowledgestore-api/internal/auth"
	"github.com/tkivite/knowledgestore-api/internal/config"
	"github.com/tkivite/knowledgestore-api/internal/event"
	handler "github.com/tkivite/knowledgestore-api/internal/handler/http"
	"github.com/tkivite/knowledgestore-api/internal/migrations"
	"github.com/tkivite/knowledgestore-api/internal/oauth/google"
	"github.com/tkivite/knowledgestore-api/internal/repository/postgres"
	"github.com/tkivite/knowledgestore-api/internal/service"
	"github.com/tkivite/knowledgestore-api/pkg/database"
	"github.com/tkivite/knowledgestore-api/pkg/health"
	"github.com/tkivite/knowledgestore-api/pkg/httpclient"
	pkgkafka "github.com/tkivite/knowledgestore-api/pkg/kafka"
	"github.com/tkivite/knowledgestore-api/pkg/middleware"
	"github.com/tkivite/knowledgestore-api/pkg/tracing"
)

const serviceVersion = "0.1.0"

// App wires together all dependencies and runs the knowledge store API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	verifier       *google.Verifier
	authService    *service.AuthService
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, cfg.ServiceName); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if cfg.RunMigrationsOnStart {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Without brokers the notifier only logs the emails it would request.
	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
		publisher = producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("KAFKA_BROKERS not set, email events will only be logged")
	}

	userRepo := postgres.NewUserRepository(pool)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(pool)
	notifier := event.NewNotifier(publisher, cfg.AppBaseURL, logger)
	codec := auth.NewTokenCodec(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)

	var (
		opts     []service.Option
		verifier *google.Verifier
	)
	if cfg.GoogleEnabled() {
		userInfo := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("google-userinfo"),
			logger,
		)
		verifier = google.NewVerifier(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}, userInfo, logger)
		opts = append(opts, service.WithIdentityVerifier(verifier))
		logger.Info("google sign-in enabled")
	}

	authService := service.NewAuthService(userRepo, refreshTokenRepo, hasher, codec, notifier, logger, opts...)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if producer != nil {
		healthHandler.RegisterOptional("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	router := handler.NewRouter(handler.RouterConfig{
		Service: authService,
		Health:  healthHandler,
		Logger:  logger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: true,
			Environment:      cfg.Environment,
		},
		ServiceName: cfg.ServiceName,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       producer,
		verifier:       verifier,
		authService:    authService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the session pruner, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.cfg.SessionPruneInterval > 0 {
		go a.runSessionPruner(ctx, a.cfg.SessionPruneInterval)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// runSessionPruner periodically deletes expired refresh tokens.
func (a *App) runSessionPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := a.authService.PruneExpiredSessions(ctx)
			if err != nil {
				a.logger.Error("session prune error", slog.String("error", err.Error()))
			} else if pruned > 0 {
				a.logger.Info("expired sessions pruned", slog.Int64("pruned", pruned))
			}
		}
	}
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Google key refresh, Kafka producer, then the PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpCtx, httpCancel := context.WithTimeout(context.Background(), timeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Spans from drained requests are flushed after the HTTP server stops.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.verifier != nil {
		a.verifier.Close()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// Migrate applies pending schema migrations and exits.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	pending, err := database.PendingMigrations(migrations.FS)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	logger.Info("applying migrations", slog.Int("files", len(pending)))

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")
	return nil
}
