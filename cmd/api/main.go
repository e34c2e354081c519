package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/nutree/stock-service/config"
	"github.com/nutree/stock-service/pkg/broker"
	"github.com/nutree/stock-service/pkg/cache"
	"github.com/nutree/stock-service/pkg/logger"
	"github.com/nutree/stock-service/pkg/postgres"
	"github.com/nutree/stock-service/pkg/search"

	alertH "github.com/nutree/stock-service/internal/alert/handler"
	alertListenerPkg "github.com/nutree/stock-service/internal/alert/listener"
	alertRepoPkg "github.com/nutree/stock-service/internal/alert/repository"
	alertUCPkg "github.com/nutree/stock-service/internal/alert/usecase"

	stockH "github.com/nutree/stock-service/internal/stock/handler"
	stockListenerPkg "github.com/nutree/stock-service/internal/stock/listener"
	stockPubPkg "github.com/nutree/stock-service/internal/stock/publisher"
	stockRepoPkg "github.com/nutree/stock-service/internal/stock/repository"
	stockUCPkg "github.com/nutree/stock-service/internal/stock/usecase"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
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
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Repositories
	stockRepo := stockRepoPkg.NewPGRepository(db)
	alertRepo := alertRepoPkg.NewPGRepository(db)

	// 5. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5.5 Initialize Kafka
	orderConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.OrdersGroupID,
	})
	defer orderConsumer.Close()

	stockConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.StockTopic,
		GroupID: cfg.Kafka.StockGroupID,
	})
	defer stockConsumer.Close()

	stockProducer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.StockTopic,
	})
	defer stockProducer.Close()
	appLogger.Info("Connected to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers))

	// 5.8 Initialize Elasticsearch
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch (movement search falls back to SQL)", zap.Error(err))
		esClient = nil
	} else {
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 6. Initialize UseCases
	locker := stockUCPkg.NewRedisLocker(redisClient, time.Duration(cfg.Ledger.LockTTLSeconds)*time.Second)
	publisher := stockPubPkg.NewKafkaPublisher(stockProducer)
	stockUC := stockUCPkg.NewStockUseCase(stockRepo, locker, publisher, esClient, appLogger, cfg.Ledger.MaxConflictRetries)
	alertUC := alertUCPkg.NewAlertUseCase(alertRepo, redisClient,
		time.Duration(cfg.Ledger.AlertCacheTTLSeconds)*time.Second, appLogger)

	// 6.5 Initialize Listeners and Sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orderListener := stockListenerPkg.NewOrderListener(orderConsumer, stockUC, appLogger)
	go orderListener.Start(ctx)

	stockListener := alertListenerPkg.NewStockEventListener(stockConsumer, alertUC, appLogger)
	go stockListener.Start(ctx)

	sweeper := stockUCPkg.NewSweeper(stockUC, time.Duration(cfg.Ledger.SweeperIntervalSeconds)*time.Second, appLogger)
	go sweeper.Start(ctx)

	// 7. Start HTTP Server
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	stockH.NewStockHandler(stockUC, appLogger).RegisterRoutes(e)
	alertH.NewAlertHandler(alertUC).RegisterRoutes(e)

	port := cfg.Server.HTTPPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", port))
		if err := e.Start(port); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("forced shutdown", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
