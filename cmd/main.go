package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"storefront/config"
	"storefront/internal/clients"
	"storefront/internal/delivery"
	grpcdelivery "storefront/internal/delivery/grpc"
	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/repository/memory"
	"storefront/internal/usecase"
	"storefront/pkg/db"
	"storefront/pkg/shutdown"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatalf("FATAL: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
		logger.Warnf("Invalid LOG_LEVEL '%s', using default: %s", cfg.LogLevel, logLevel.String())
	}
	logger.SetLevel(logLevel)
	logger.Info("Starting Storefront Order Service...")

	ctx, cancel := shutdown.WithSignals(context.Background(), func(sig os.Signal) {
		logger.Warnf("Shutdown signal received: %s", sig)
	})
	defer cancel()

	store, closeStore := mustStore(ctx, cfg, logger)
	defer closeStore()

	idempotency, closeIdempotency := mustIdempotency(ctx, cfg, logger)
	defer closeIdempotency()

	events, closeEvents := newEventPublisher(cfg, logger)
	defer closeEvents()

	// --- Dependency Injection ---
	ledger := usecase.NewInventoryLedger(cfg.ReserveMaxAttempts, cfg.ReserveBackoff, logger)
	orderUseCase := usecase.NewOrderUseCase(store, ledger, events, idempotency, cfg.PlaceOrderTimeout, logger)
	cartUseCase := usecase.NewCartUseCase(store, logger)
	logger.Info("Use cases initialized.")

	router := delivery.NewRouter(
		delivery.NewOrderHandler(orderUseCase, logger),
		delivery.NewCartHandler(cartUseCase, logger),
		store,
		delivery.RouterConfig{
			CORSOrigins:        cfg.CORSOrigins,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			RateLimitBurst:     cfg.RateLimitBurst,
		},
		logger,
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthReporter := grpcdelivery.NewServer(store, 15*time.Second, logger)
	lis, err := net.Listen("tcp", cfg.GrpcPort)
	if err != nil {
		logger.Fatalf("Failed to listen on port %s: %v", cfg.GrpcPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("gRPC server listening on %s", cfg.GrpcPort)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		healthReporter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return stopServers(httpServer, grpcServer, cfg.ShutdownTimeout, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Storefront Order Service shut down gracefully.")
}

func stopServers(httpServer *http.Server, grpcServer *grpc.Server, timeout time.Duration, logger *logrus.Logger) error {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	err := httpServer.Shutdown(stopCtx)
	if err != nil {
		logger.Errorf("HTTP server shutdown: %v", err)
	}

	select {
	case <-stopCtx.Done():
		logger.Warn("Graceful stop timeout, forcing gRPC stop")
		grpcServer.Stop()
	case <-stopped:
	}
	return err
}

func mustStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (domain.UnitOfWork, func()) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage; data is lost on restart")
		store := memory.NewStore(logger)
		seedDemoData(store)
		return store, func() {}
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established.")

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, database); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
		logger.Info("Database schema applied.")
	}

	return repository.NewPostgresStore(database, cfg.LockTimeout, logger), closer(database, "Database connection", logger)
}

func mustIdempotency(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (domain.IdempotencyStore, func()) {
	if cfg.RedisURL == "" {
		return clients.NewMemoryIdempotencyStore(cfg.IdempotencyTTL, cfg.IdempotencyPendingTTL), func() {}
	}
	client, err := clients.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis")
	return clients.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL, cfg.IdempotencyPendingTTL, logger), closer(client, "Redis client", logger)
}

func newEventPublisher(cfg *config.Config, logger *logrus.Logger) (domain.OrderEventPublisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return clients.NewLogOrderPublisher(logger), func() {}
	}
	producer := clients.NewKafkaOrderProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
	return producer, closer(producer, "Kafka producer", logger)
}

type closable interface {
	Close() error
}

func closer(c closable, name string, logger *logrus.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Errorf("Error closing %s: %v", name, err)
			return
		}
		logger.Infof("%s closed.", name)
	}
}

// seedDemoData gives the in-memory driver a user and a small catalog to order from.
func seedDemoData(store *memory.Store) {
	store.SeedUser(domain.User{ID: 1, FirstName: "Demo", LastName: "User", Email: "demo@example.com"})
	store.SeedUser(domain.User{ID: 2, FirstName: "Demo", LastName: "Admin", Email: "admin@example.com", Role: domain.RoleAdmin})
	store.SeedProduct(domain.Product{ID: 1, Name: "Mechanical Keyboard", Price: decimal.RequireFromString("89.90"), Stock: 25})
	store.SeedProduct(domain.Product{ID: 2, Name: "USB-C Cable", Price: decimal.RequireFromString("9.99"), Stock: 200})
	store.SeedProduct(domain.Product{ID: 3, Name: "Limited Edition Mousepad", Price: decimal.RequireFromString("24.50"), Stock: 1})
}
