package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/jobs"
	"github.com/fekuna/omnipos-stock-service/internal/order"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/broker"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/i18n"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/postgres"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/server"

	batchH "github.com/fekuna/omnipos-stock-service/internal/batch/handler"
	batchRepoPkg "github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	batchUCPkg "github.com/fekuna/omnipos-stock-service/internal/batch/usecase"

	invH "github.com/fekuna/omnipos-stock-service/internal/inventory/handler"
	invRepoPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"

	jobsH "github.com/fekuna/omnipos-stock-service/internal/jobs/handler"
	jobsRepoPkg "github.com/fekuna/omnipos-stock-service/internal/jobs/repository"
	jobsUCPkg "github.com/fekuna/omnipos-stock-service/internal/jobs/usecase"

	orderH "github.com/fekuna/omnipos-stock-service/internal/order/handler"
	orderListenerPkg "github.com/fekuna/omnipos-stock-service/internal/order/listener"
	orderRepoPkg "github.com/fekuna/omnipos-stock-service/internal/order/repository"
	orderUCPkg "github.com/fekuna/omnipos-stock-service/internal/order/usecase"

	prodH "github.com/fekuna/omnipos-stock-service/internal/product/handler"
	prodRepoPkg "github.com/fekuna/omnipos-stock-service/internal/product/repository"
	prodUCPkg "github.com/fekuna/omnipos-stock-service/internal/product/usecase"

	saleH "github.com/fekuna/omnipos-stock-service/internal/sale/handler"
	saleRepoPkg "github.com/fekuna/omnipos-stock-service/internal/sale/repository"
	saleUCPkg "github.com/fekuna/omnipos-stock-service/internal/sale/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// repositories is one storage backend's set of repositories sharing a transactor.
type repositories struct {
	product   product.Repository
	inventory inventory.Repository
	batch     batch.Repository
	order     order.Repository
	sale      sale.Repository
	tx        db.Transactor
	ping      server.Pinger
	close     func() error
}

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development",
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	defer appLogger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 3. Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		appLogger.Fatal("Could not initialize tracing", zap.Error(err))
	}

	// 4. Storage
	repos, err := openStorage(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer repos.close()

	// 5. Redis (optional): product list cache, job status, reconciliation lock
	var (
		redisClient *cache.RedisClient
		jobStore    jobs.Store
		jobLocker   jobs.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		jobStore = jobsRepoPkg.NewRedisStore(redisClient.Client, cfg.Jobs.StatusTTL)
		jobLocker = redisClient
	} else {
		appLogger.Warn("Redis disabled, job status and locks are kept in process")
		jobStore = jobsRepoPkg.NewMemoryStore(cfg.Jobs.StatusTTL)
		jobLocker = jobsRepoPkg.NewMemoryLocker()
	}

	// 6. Kafka (optional): domain events out, order status in
	var publisher events.Publisher = events.NoopPublisher{}
	var orderConsumer *broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.EventsTopic,
		})
		defer producer.Close()
		publisher = events.NewKafkaPublisher(producer, appLogger)

		orderConsumer = broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OrderStatusTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer orderConsumer.Close()
		appLogger.Info("Kafka enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("events_topic", cfg.Kafka.EventsTopic),
			zap.String("order_status_topic", cfg.Kafka.OrderStatusTopic),
		)
	}

	// 7. UseCases
	prodUC := prodUCPkg.NewProductUseCase(repos.product, repos.inventory, repos.batch, repos.tx, redisClient, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(repos.inventory, repos.tx, publisher, appLogger)
	batchUC := batchUCPkg.NewBatchUseCase(repos.batch, repos.inventory, repos.product, repos.tx, publisher, appLogger)
	orderUC := orderUCPkg.NewOrderUseCase(repos.order, repos.inventory, repos.product, repos.batch, repos.tx, publisher, appLogger, cfg.Order)
	saleUC := saleUCPkg.NewSaleUseCase(repos.sale, repos.inventory, repos.product, repos.batch, repos.tx, publisher, appLogger)
	jobsUC := jobsUCPkg.NewJobsUseCase(jobStore, jobLocker, repos.batch, batchUC, repos.product, invUC, appLogger)

	// 8. Listeners
	if orderConsumer != nil {
		go orderListenerPkg.NewOrderStatusListener(orderConsumer, orderUC, appLogger).Start(ctx)
	}

	// 9. Handlers
	translator, err := i18n.New()
	if err != nil {
		appLogger.Fatal("Could not load locales", zap.Error(err))
	}
	resp := httpx.NewResponder(translator, appLogger)
	router := server.NewRouter(appLogger, repos.ping,
		prodH.NewProductHandler(prodUC, resp, appLogger),
		invH.NewInventoryHandler(invUC, resp, appLogger),
		batchH.NewBatchHandler(batchUC, resp, appLogger),
		orderH.NewOrderHandler(orderUC, resp, appLogger),
		saleH.NewSaleHandler(saleUC, resp, appLogger),
		jobsH.NewJobsHandler(jobsUC, resp, appLogger),
	)

	// 10. Start HTTP and gRPC servers
	httpServer := &http.Server{
		Addr:              listenAddr(cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	grpcServer, healthServer := server.NewGRPCServer(appLogger)
	lis, err := net.Listen("tcp", listenAddr(cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Fatal("Failed to listen", zap.Error(err))
	}
	go server.WatchHealth(ctx, healthServer, repos.ping, 5*time.Second, appLogger)
	go func() {
		appLogger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP graceful shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	if err := jobsUC.Drain(shutdownCtx); err != nil {
		appLogger.Warn("Jobs still running at shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		appLogger.Warn("Tracer shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, log logger.ZapLogger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("Using in-memory storage; data is lost on restart")
		store := memdb.New()
		return &repositories{
			product:   prodRepoPkg.NewMemoryRepository(store),
			inventory: invRepoPkg.NewMemoryRepository(store),
			batch:     batchRepoPkg.NewMemoryRepository(store),
			order:     orderRepoPkg.NewMemoryRepository(store),
			sale:      saleRepoPkg.NewMemoryRepository(store),
			tx:        store,
			ping:      func(context.Context) error { return nil },
			close:     func() error { return nil },
		}, nil

	case "postgres":
		sqlDB, err := postgres.NewPostgres(&postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

		if cfg.Postgres.RunMigrations {
			if err := postgres.RunMigrations(ctx, sqlDB); err != nil {
				sqlDB.Close()
				return nil, err
			}
			log.Info("Migrations applied")
		}
		return &repositories{
			product:   prodRepoPkg.NewPGRepository(sqlDB),
			inventory: invRepoPkg.NewPGRepository(sqlDB),
			batch:     batchRepoPkg.NewPGRepository(sqlDB),
			order:     orderRepoPkg.NewPGRepository(sqlDB),
			sale:      saleRepoPkg.NewPGRepository(sqlDB),
			tx:        db.NewSQLTransactor(sqlDB),
			ping:      sqlDB.PingContext,
			close:     sqlDB.Close,
		}, nil

	default:
		return nil, errors.New("unknown STORAGE_DRIVER " + cfg.Storage.Driver)
	}
}

func listenAddr(port string) string {
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
