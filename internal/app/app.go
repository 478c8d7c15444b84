package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sonic7adarsh/bharatapp/internal/config"
	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/event"
	handler "github.com/sonic7adarsh/bharatapp/internal/handler/http"
	"github.com/sonic7adarsh/bharatapp/internal/remote"
	"github.com/sonic7adarsh/bharatapp/internal/service"
	"github.com/sonic7adarsh/bharatapp/internal/session"
	"github.com/sonic7adarsh/bharatapp/internal/storage"
	"github.com/sonic7adarsh/bharatapp/internal/storage/memory"
	"github.com/sonic7adarsh/bharatapp/internal/storage/postgres"
	redisstore "github.com/sonic7adarsh/bharatapp/internal/storage/redis"
	"github.com/sonic7adarsh/bharatapp/pkg/database"
	"github.com/sonic7adarsh/bharatapp/pkg/health"
	"github.com/sonic7adarsh/bharatapp/pkg/httpclient"
	pkgkafka "github.com/sonic7adarsh/bharatapp/pkg/kafka"
	"github.com/sonic7adarsh/bharatapp/pkg/tracing"
)

const serviceName = "storefront"

// sweepInterval is how often idle sessions, expired revocations and expired
// stored state are cleaned up.
const sweepInterval = time.Minute

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	store          storage.Store
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	sessions       *service.Sessions
	manager        *session.Manager
	announcer      *session.LogAnnouncer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	logCloser      io.Closer
}

// NewApp creates a new application instance, initializing all dependencies.
// logCloser, when non-nil, is closed last on shutdown.
func NewApp(cfg *config.Config, logger *slog.Logger, logCloser io.Closer) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, logCloser: logCloser}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.AppVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEndpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler(serviceName, cfg.AppVersion)

	// Per-session local state.
	if err := a.openStore(ctx, healthHandler); err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// Events are optional; without Kafka the checkout publishes nowhere.
	var publisher event.Publisher = event.Nop{}
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, cfg.CheckoutTopic, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.CheckoutTopic),
		)
	}

	// Sessions: token validation, sign-out and per-session notices.
	a.announcer = session.NewLogAnnouncer(logger)
	a.manager = session.NewManager(cfg.SessionJWTSecret, a.announcer, logger)

	// Backend client with retrying reads, single-shot writes and breakers.
	client := remote.New(remote.Config{
		BaseURL: cfg.BackendBaseURL,
		HTTP: httpclient.Config{
			Timeout:         cfg.RemoteTimeout(),
			MaxRetries:      2,
			RetryWaitMin:    200 * time.Millisecond,
			RetryWaitMax:    2 * time.Second,
			MaxConnsPerHost: 100,
		},
		Breaker: httpclient.CircuitBreakerConfig{
			Name:         "backend",
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      time.Duration(cfg.CBTimeoutSeconds) * time.Second,
			FailureRatio: cfg.CBFailureRatio,
			MinRequests:  cfg.CBMinRequests,
		},
	}, a.manager, logger)
	healthHandler.RegisterNonCritical("backend", client.Healthy)
	logger.Info("backend client initialized", slog.String("base_url", cfg.BackendBaseURL))

	a.sessions = service.NewSessions(service.SessionsConfig{
		Store:     a.store,
		Backend:   client,
		Announcer: a.announcer,
		Events:    publisher,
		Sanitizer: bluemonday.StrictPolicy(),
		Booking: service.BookingPolicy{
			Room: domain.RoomPolicy{
				MaxPerRoom:           cfg.MaxGuestsPerRoom,
				ExtraMattressAllowed: cfg.ExtraMattressAllowed,
				MaxRooms:             cfg.MaxRooms,
			},
			Stay: domain.StayPolicy{
				TaxRatePct:          domain.Rupees(cfg.TaxRatePct),
				ServiceFeePct:       domain.Rupees(cfg.ServiceFeePct),
				MattressFeePerNight: domain.Rupees(cfg.MattressFeePerNight),
			},
		},
		Checkout: service.CheckoutConfig{
			Area: domain.NewServiceArea(cfg.ServiceablePincodes),
			CartPolicy: domain.CartPolicy{
				FreeDeliveryThreshold: domain.Rupees(cfg.FreeDeliveryThreshold),
				DeliveryFee:           domain.Rupees(cfg.DeliveryFee),
			},
			SubmitTimeout: cfg.SubmitTimeout(),
		},
		RemoteTimeout: cfg.RemoteTimeout(),
		IdleTimeout:   cfg.SessionIdle(),
	}, logger)

	// A signed-out session loses its in-memory state; stored state stays.
	a.manager.OnLogout(a.sessions.Drop)

	router := handler.NewRouter(cfg, handler.RouterDeps{
		Sessions: a.sessions,
		Notices:  a.announcer,
		Validate: a.manager.Validate,
		Health:   healthHandler,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.SubmitTimeout() + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured local state backend and registers its
// health check.
func (a *App) openStore(ctx context.Context, hh *health.Handler) error {
	cfg := a.cfg
	ttl := cfg.LocalStateTTL()

	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		}, a.logger)
		if err != nil {
			return err
		}
		a.rdb = rdb
		a.store = redisstore.New(rdb, ttl)
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
			URL:      cfg.PostgresURL,
			MaxConns: cfg.PostgresMaxConns,
		}, a.logger)
		if err != nil {
			return err
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), a.logger); err != nil {
			pool.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		a.pool = pool
		a.store = postgres.New(pool, &database.QueryObserver{
			SlowThreshold: time.Duration(cfg.SlowQueryMillis) * time.Millisecond,
			Logger:        a.logger,
		}, ttl)
		a.logger.Info("connected to PostgreSQL", slog.Int("max_conns", int(cfg.PostgresMaxConns)))

	default:
		a.store = memory.New(ttl)
		a.logger.Info("using in-memory session state")
	}

	hh.RegisterCritical("store", a.store.Ping)
	return nil
}

// Run starts the HTTP server and the periodic sweeper, and blocks until the
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

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepLoop(sweepCtx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopSweep()
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// sweep drops idle sessions, forgets expired revocations and purges expired
// stored state on backends that cannot expire it themselves.
func (a *App) sweep(ctx context.Context) {
	dropped := a.sessions.Sweep()
	revoked := a.manager.Sweep()

	var purged int64
	if p, ok := a.store.(storage.Purger); ok {
		n, err := p.Purge(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "purge expired session state failed", slog.String("error", err.Error()))
		}
		purged = n
	}

	if dropped+revoked > 0 || purged > 0 {
		a.logger.DebugContext(ctx, "sweep complete",
			slog.Int("sessions_dropped", dropped),
			slog.Int("revocations_expired", revoked),
			slog.Int64("state_purged", purged),
		)
	}
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Sessions (wait for cart mirrors and order submissions)
// 3. Tracer (flush spans from the drained work)
// 4. Kafka producer
// 5. Redis client or PostgreSQL pool
// 6. Log file
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	sessCtx, sessCancel := context.WithTimeout(context.Background(), a.cfg.SubmitTimeout()+5*time.Second)
	defer sessCancel()
	if err := a.sessions.Close(sessCtx); err != nil {
		a.logger.Error("sessions did not settle", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("application shutdown complete")

	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
