package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bibbank/origination/internal/application/usecase"
	"github.com/bibbank/origination/internal/domain/port"
	"github.com/bibbank/origination/internal/infrastructure/adapter"
	"github.com/bibbank/origination/internal/infrastructure/config"
	"github.com/bibbank/origination/internal/infrastructure/document"
	"github.com/bibbank/origination/internal/infrastructure/lock"
	"github.com/bibbank/origination/internal/infrastructure/messaging"
	"github.com/bibbank/origination/internal/infrastructure/persistence/memory"
	pgRepo "github.com/bibbank/origination/internal/infrastructure/persistence/postgres"
	"github.com/bibbank/origination/internal/infrastructure/resolver"
	"github.com/bibbank/origination/internal/infrastructure/seed"
	grpcPresentation "github.com/bibbank/origination/internal/presentation/grpc"
	"github.com/bibbank/origination/internal/presentation/rest"
	"github.com/bibbank/origination/pkg/events"
	pkgkafka "github.com/bibbank/origination/pkg/kafka"
	"github.com/bibbank/origination/pkg/observability"
	pkgpostgres "github.com/bibbank/origination/pkg/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.ServiceName,
		Redact:  []string{"phone"},
	})
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("origination service failed", "error", err)
		os.Exit(1)
	}
}

// stores are the persistence adapters selected by STORE_DRIVER.
type stores struct {
	customers port.CustomerRepository
	sessions  port.SessionRepository
	sanctions port.SanctionRepository
	outbox    events.OutboxRepository
	pool      *pgxpool.Pool
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("starting origination service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"store", cfg.StoreDriver,
		"lock", cfg.LockDriver,
		"resolver", cfg.ResolverDriver,
	)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }() //nolint:errcheck // best-effort tracer shutdown
	}

	meterProvider, metricsHandler, err := observability.InitMetrics(observability.MetricsConfig{
		ServiceName:      cfg.ServiceName,
		HistogramBuckets: map[string][]float64{
			"origination.turn.duration": observability.TurnDurationBuckets,
		},
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() { _ = meterProvider.Shutdown(context.Background()) }() //nolint:errcheck

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	if cfg.SeedDemoCustomers {
		if _, err := seed.Customers(ctx, st.customers, logger); err != nil {
			return fmt.Errorf("seed demo customers: %w", err)
		}
	}

	locker, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	intents, err := openResolver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	renderer, err := document.NewPDFRenderer(cfg.RenderDir)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	svc := usecase.NewServices(usecase.Dependencies{
		Customers:       st.customers,
		Sessions:        st.sessions,
		Sanctions:       st.sanctions,
		Locker:          locker,
		Resolver:        intents,
		Renderer:        renderer,
		Documents:       document.NewFileStore(cfg.RenderDir),
		Bureau:          adapter.NewCustomerRecordBureau(adapter.DefaultCreditBureauConfig(), st.customers),
		ResolverTimeout: cfg.ResolverTimeout,
		RenderTimeout:   cfg.RenderTimeout,
		Logger:          logger,
	})

	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	if kafkaCfg := cfg.Kafka(); kafkaCfg.Enabled() {
		producer := pkgkafka.NewProducer(kafkaCfg)
		defer producer.Close()

		relay := messaging.NewOutboxRelay(st.outbox, producer, cfg.KafkaEventsTopic, cfg.OutboxPollInterval, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			relay.Run(workerCtx)
		}()

		salaryDocs := messaging.NewSalaryDocumentHandler(svc.UploadSalary, logger)
		consumer := pkgkafka.NewConsumer(kafkaCfg, cfg.KafkaSalaryTopic, salaryDocs.Handle, logger)
		defer consumer.Close()
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Start(workerCtx); err != nil {
				logger.Error("salary document consumer stopped", "error", err)
			}
		}()
	} else {
		logger.Info("kafka not configured, outbox relay and salary consumer disabled")
	}

	grpcServer, err := grpcPresentation.NewServer(
		grpcPresentation.NewOriginationHandler(svc),
		grpcPresentation.ServerConfig{
			ServiceName: cfg.ServiceName,
			Reflection:  cfg.GRPCReflection,
			TLSCertFile: cfg.TLSCertFile,
			TLSKeyFile:  cfg.TLSKeyFile,
		},
		logger,
	)
	if err != nil {
		return err
	}

	var db pkgpostgres.Pinger
	if st.pool != nil {
		db = st.pool
	}
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: rest.NewRouter(rest.RouterConfig{
			API:          rest.NewAPIHandler(svc, cfg.UploadDir, logger),
			Health:       rest.NewHealthHandler(cfg.ServiceName, db, logger),
			Metrics:      metricsHandler,
			RateLimitRPS: cfg.RateLimitRPS,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server error", "error", serveErr)
	}

	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("origination service stopped")
	return serveErr
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		outbox := memory.NewOutbox()
		customers := memory.NewCustomerRepository()
		sanctions := memory.NewSanctionRepository(outbox)
		logger.Warn("using in-memory store; data is lost on restart")
		return stores{
			customers: customers,
			sessions:  memory.NewSessionRepository(outbox, sanctions),
			sanctions: sanctions,
			outbox:    outbox,
		}, nil
	}

	if cfg.RunMigrations {
		if err := pkgpostgres.RunMigrations(cfg.Postgres().DSN(), pgRepo.Migrations, pgRepo.MigrationsDir, pkgpostgres.Up); err != nil {
			return stores{}, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dbCancel()
	pool, err := pkgpostgres.NewPool(dbCtx, cfg.Postgres())
	if err != nil {
		return stores{}, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.DBHost, "database", cfg.DBName)

	customers := pgRepo.NewCustomerRepo(pool)
	return stores{
		customers: customers,
		sessions:  pgRepo.NewSessionRepo(pool),
		sanctions: pgRepo.NewSanctionRepo(pool),
		outbox:    pgRepo.NewOutboxRepo(pool),
		pool:      pool,
	}, nil
}

func openLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (port.SessionLocker, func(), error) {
	if cfg.LockDriver != config.DriverRedis {
		return lock.NewMemoryLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("connected to redis", "addr", cfg.RedisAddr)

	return lock.NewRedisLocker(client, cfg.LockTTL, logger), func() { _ = client.Close() }, nil
}

func openResolver(ctx context.Context, cfg config.Config, logger *slog.Logger) (port.IntentResolver, error) {
	if cfg.ResolverDriver != config.ResolverGemini {
		logger.Info("using rule-based intent resolver")
		return resolver.NewRules(), nil
	}

	gemini := resolver.NewGemini(resolver.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	}, &http.Client{Timeout: cfg.ResolverTimeout}, logger)

	initCtx, cancel := context.WithTimeout(ctx, cfg.ResolverTimeout)
	defer cancel()
	if err := gemini.Init(initCtx); err != nil {
		// Resolve retries model selection on first use.
		logger.Warn("intent resolver model discovery failed", "error", err)
	}
	return gemini, nil
}
