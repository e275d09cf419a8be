package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/DrOksusu/dba-portal-auth/internal/auth"
	"github.com/DrOksusu/dba-portal-auth/internal/config"
	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/event"
	handler "github.com/DrOksusu/dba-portal-auth/internal/handler/http"
	"github.com/DrOksusu/dba-portal-auth/internal/notifier"
	"github.com/DrOksusu/dba-portal-auth/internal/provider"
	"github.com/DrOksusu/dba-portal-auth/internal/repository"
	"github.com/DrOksusu/dba-portal-auth/internal/repository/postgres"
	redisrepo "github.com/DrOksusu/dba-portal-auth/internal/repository/redis"
	"github.com/DrOksusu/dba-portal-auth/internal/service"
	"github.com/DrOksusu/dba-portal-auth/internal/worker"
	"github.com/DrOksusu/dba-portal-auth/migrations"
	"github.com/DrOksusu/dba-portal-auth/pkg/database"
	"github.com/DrOksusu/dba-portal-auth/pkg/health"
	"github.com/DrOksusu/dba-portal-auth/pkg/httpclient"
	pkgkafka "github.com/DrOksusu/dba-portal-auth/pkg/kafka"
	"github.com/DrOksusu/dba-portal-auth/pkg/middleware"
	"github.com/DrOksusu/dba-portal-auth/pkg/tracing"
)

const serviceName = "auth"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	sweeper        *worker.Sweeper
	stopSweeper    func()
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp connects to every backing service and builds the HTTP server.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	if err := a.build(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryMillis > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryMillis)*time.Millisecond, logger)
	}

	// The Redis throttle is optional; without it the stored request count
	// still bounds code requests.
	var throttle repository.SendThrottle
	if cfg.RedisHost != "" {
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = rdb
		throttle = redisrepo.NewSendThrottle(rdb)
		logger.Info("connected to Redis", slog.String("addr", rdb.Options().Addr))
	} else {
		logger.Warn("REDIS_HOST is empty, verification throttle falls back to PostgreSQL")
	}

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	events := event.NewProducer(a.producer, logger)

	pendingKey := []byte(cfg.JWTPendingSecret)
	if cfg.JWTPendingSecret == "" {
		if pendingKey, err = auth.DeriveKey(cfg.JWTAccessSecret, "pending-profile"); err != nil {
			return fmt.Errorf("derive pending profile key: %w", err)
		}
	}
	codec := auth.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	pending := auth.NewPendingSigner(pendingKey, cfg.PendingExpiry)

	users := postgres.NewUserRepository(pool)
	accounts := postgres.NewSocialAccountRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)
	verifications := postgres.NewPhoneVerificationRepository(pool)

	upstream := httpclient.New(httpclient.DefaultConfig())

	var sms service.Notifier
	if cfg.CoolSMSAPIKey != "" {
		sms = notifier.NewCoolSMS(notifier.CoolSMSConfig{
			APIKey:    cfg.CoolSMSAPIKey,
			APISecret: cfg.CoolSMSAPISecret,
			Sender:    cfg.CoolSMSSender,
			BaseURL:   cfg.CoolSMSBaseURL,
		}, httpclient.NewBreaker(upstream, httpclient.DefaultBreakerConfig("coolsms"), logger), logger)
	} else {
		if !cfg.IsDevelopment() {
			logger.Warn("COOLSMS_API_KEY is empty, verification codes are only logged")
		}
		sms = notifier.NewLogNotifier(logger)
	}

	providers := map[domain.Provider]handler.ProfileFetcher{
		domain.ProviderKakao: provider.NewKakao(cfg.KakaoAPIBaseURL,
			httpclient.NewBreaker(upstream, httpclient.DefaultBreakerConfig("kakao"), logger), logger),
	}
	if cfg.GoogleClientID != "" {
		providers[domain.ProviderGoogle] = provider.NewGoogle(cfg.GoogleClientID, upstream.HTTPClient(), logger)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID is empty, Google login is disabled")
	}

	verificationSvc := service.NewVerificationService(verifications, throttle, sms, service.VerificationConfig{
		CodeTTL:    cfg.VerificationCodeTTL,
		RateWindow: cfg.VerificationRateWindow,
		RateMax:    cfg.VerificationRateMax,
	}, logger)
	tokenSvc := service.NewTokenService(tokenRepo, users, codec, logger)
	identitySvc := service.NewIdentityService(users, accounts, verificationSvc, tokenSvc, pending, events, logger)
	userSvc := service.NewUserService(users, accounts, tokenSvc, events, logger)

	a.sweeper = worker.NewSweeper(map[string]worker.Sweepable{
		"tokens":              tokenSvc,
		"phone_verifications": verificationSvc,
	}, cfg.SweepInterval, logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", pool.Ping)
	if a.redis != nil {
		rdb := a.redis
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterNonCritical("kafka", a.producer.Ping)

	router := handler.NewRouter(handler.Services{
		Verifier:  verificationSvc,
		Identity:  identitySvc,
		Sessions:  tokenSvc,
		Accounts:  userSvc,
		Providers: providers,
	}, healthHandler, logger, middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run serves HTTP and sweeps expired records until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(sweepCtx)
	}()
	a.stopSweeper = func() {
		cancelSweep()
		wg.Wait()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops components in dependency order: HTTP first so no request
// is cut off mid-flight, then the sweeper, the tracer, and the backends.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.stopSweeper != nil {
		a.stopSweeper()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeBackends())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeBackends releases whatever build managed to open.
func (a *App) closeBackends() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
