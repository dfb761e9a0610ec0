package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/garagebook/garagebook/libs/auth"
	"github.com/garagebook/garagebook/libs/config"
	"github.com/garagebook/garagebook/libs/db"
	"github.com/garagebook/garagebook/libs/httpx"
	"github.com/garagebook/garagebook/libs/kafkax"
	otelx "github.com/garagebook/garagebook/libs/otel"
	"github.com/garagebook/garagebook/libs/runtime"
	"github.com/garagebook/garagebook/services/booking-service/internal/booking"
	"github.com/garagebook/garagebook/services/booking-service/internal/consumer"
	"github.com/garagebook/garagebook/services/booking-service/internal/handlers"
	"github.com/garagebook/garagebook/services/booking-service/internal/metrics"
	"github.com/garagebook/garagebook/services/booking-service/internal/outbox"
	"github.com/garagebook/garagebook/services/booking-service/internal/payments"
	"github.com/garagebook/garagebook/services/booking-service/internal/seed"
	"github.com/garagebook/garagebook/services/booking-service/internal/storage"
	"github.com/garagebook/garagebook/services/booking-service/migrations"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := runtime.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}
	metrics.Register()

	lockWait, err := config.Millis("BOOKING_LOCK_TIMEOUT_MS", 3*time.Second)
	if err != nil {
		panic(err)
	}
	maxAttempts, err := config.Int("BOOKING_MAX_ATTEMPTS", 3)
	if err != nil {
		panic(err)
	}
	maxDays, err := config.Int("SLOT_MAX_DAYS", 14)
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")

	store, readyChecks, closeStore := openStore(ctx, logger, brokers)
	defer closeStore()

	var gateway booking.PaymentGateway
	if config.Bool("PAYMENTS_ENABLED", false) {
		key, err := config.RequiredString("STRIPE_SECRET_KEY")
		if err != nil {
			panic(err)
		}
		gateway = payments.NewStripeGateway(key, config.String("STRIPE_CURRENCY", "eur"))
		logger.Info("online payments enabled")
	}

	arbiter := booking.NewArbiter(store, logger, booking.ArbiterConfig{LockWait: lockWait, MaxAttempts: maxAttempts})
	svc := booking.NewService(store, arbiter, gateway, logger, booking.Config{MaxDays: maxDays})

	if topic := config.String("KAFKA_SETTLEMENT_TOPIC", "payments.settlement.v1"); brokers != "" && topic != "" {
		settlements := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   topic,
		}, consumer.SettlementHandler(svc, logger))
		go settlements.Run(ctx)
	}

	publicLimit, closeLimiter := rateLimiter(logger)
	defer closeLimiter()

	webhookTolerance, err := config.Millis("STRIPE_WEBHOOK_TOLERANCE_MS", 5*time.Minute)
	if err != nil {
		panic(err)
	}
	bookingHandler := handlers.New(svc, logger, handlers.Options{
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: webhookTolerance,
		PublicLimit:            publicLimit,
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", promhttp.Handler())
	bookingHandler.Register(mux)

	jwtSecret := config.String("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Warn("JWT_SECRET not set; owner and client endpoints will reject every request")
	}
	requestTimeout, err := config.Millis("HTTP_REQUEST_TIMEOUT_MS", 15*time.Second)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
		auth.Authenticate(jwtSecret),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// openStore builds the storage driver named by STORAGE_DRIVER along with its
// readiness checks and a close func.
func openStore(ctx context.Context, logger *slog.Logger, brokers string) (storage.Store, []runtime.ReadyCheck, func()) {
	switch driver := config.String("STORAGE_DRIVER", "postgres"); driver {
	case "memory":
		store := storage.NewMemoryStore()
		if path := config.String("SEED_FILE", ""); path != "" {
			nb, ns, err := seed.Apply(path, store)
			if err != nil {
				logger.Error("seed load failed", "err", err, "path", path)
				os.Exit(1)
			}
			logger.Info("seed loaded", "path", path, "businesses", nb, "services", ns)
		}
		go outbox.NewQueuePublisher(store, logger, outboxConfig(brokers)).Run(ctx)
		logger.Warn("using in-memory storage; bookings and unpublished events are lost on restart",
			"max_pending_events", storage.DefaultMaxPendingEvents)
		return store, nil, func() {}

	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			panic(err)
		}
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns), AppName: "booking-service"})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		if config.Bool("MIGRATE_ON_START", true) {
			applied, err := migrations.Up(ctx, pool)
			if err != nil {
				logger.Error("migrations failed", "err", err)
				pool.Close()
				os.Exit(1)
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "files", strings.Join(applied, ","))
			}
		}

		outboxRepo := outbox.NewRepository(pool)
		go outbox.NewPublisher(outboxRepo, logger, outboxConfig(brokers)).Run(ctx)

		checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
		if brokers != "" {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
		return storage.NewPostgresStore(pool, outboxRepo), checks, pool.Close

	default:
		logger.Error("unknown STORAGE_DRIVER", "driver", driver)
		os.Exit(1)
		return nil, nil, nil
	}
}

func outboxConfig(brokers string) outbox.PublisherConfig {
	pollEvery, err := config.Millis("OUTBOX_POLL_MS", 2*time.Second)
	if err != nil {
		panic(err)
	}
	return outbox.PublisherConfig{Brokers: brokers, PollEvery: pollEvery, BatchSize: 50}
}

// rateLimiter guards the public endpoints. Redis is used when REDIS_ADDR is set
// so every replica shares one budget.
func rateLimiter(logger *slog.Logger) (httpx.Middleware, func()) {
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		panic(err)
	}
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
		return httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware(), func() {}
	}

	redisDB, err := config.NonNegativeInt("REDIS_DB", 0)
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
	rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "booking-rl"))
	logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), func() { _ = rdb.Close() }
}
