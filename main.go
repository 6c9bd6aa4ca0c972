package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/aura-ai-core/internal/analyzer"
	"github.com/example/aura-ai-core/internal/auth"
	"github.com/example/aura-ai-core/internal/broker"
	"github.com/example/aura-ai-core/internal/config"
	"github.com/example/aura-ai-core/internal/diagnosis"
	"github.com/example/aura-ai-core/internal/handlers"
	"github.com/example/aura-ai-core/internal/hardware"
	"github.com/example/aura-ai-core/internal/loader"
	"github.com/example/aura-ai-core/internal/logging"
	"github.com/example/aura-ai-core/internal/repository"
	"github.com/example/aura-ai-core/internal/validator"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg := config.Load()

	device := hardware.Detect(ctx)
	logger.Info("hardware detected",
		zap.String("device", device.Device),
		zap.String("cpu", device.CPUModel),
		zap.Int("cores", device.Cores))

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewAnalysisRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
	cache := diagnosis.NewRedisCache(redisClient)

	strategy := selectStrategy(cfg, device)
	logger.Info("analysis strategy selected", zap.String("strategy", strategy.Name()))

	bus := evbus.New()
	if err := bus.Subscribe(diagnosis.TopicDiagnosisCompleted, func(outcome *diagnosis.Outcome) {
		logger.Info("diagnosis completed",
			zap.String("request_id", outcome.RequestID),
			zap.String("status", outcome.Status),
			zap.Float64("risk_score", outcome.RiskScore),
			zap.String("risk_level", outcome.RiskLevel))
	}); err != nil {
		logger.Fatal("event bus subscription failed", zap.Error(err))
	}

	imageLoader := loader.New(cfg.UploadDir, cfg.FetchTimeout, logger)
	orchestrator := diagnosis.NewOrchestrator(
		imageLoader,
		validator.New(),
		strategy,
		repo,
		cache,
		bus,
		cfg.ResultsDir,
		cfg.PublicBaseURL,
		logger,
	)

	reporter := broker.NewReporter(cfg.ImagingServiceURL, logger)
	consumer := broker.NewConsumer(cfg.AMQPURL, cfg.ExchangeName, orchestrator, reporter, logger)
	// background daemon, lifetime = process lifetime
	go consumer.Run(context.Background())

	r := gin.Default()

	var authMiddleware gin.HandlerFunc
	if cfg.JWTSecret != "" {
		authMiddleware = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	}

	handlers.RegisterRoutes(r, orchestrator, authMiddleware, device, cfg.ResultsDir)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	logger.Info("AI core listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func selectStrategy(cfg *config.Config, device hardware.Info) analyzer.Strategy {
	switch cfg.Strategy {
	case config.StrategyLesion:
		return analyzer.NewLesionStrategy()
	case config.StrategyClassifier:
		return analyzer.NewClassifierStrategy()
	}
	// auto: the classifier preprocess is sized for accelerated inference
	if device.Device == "gpu" {
		return analyzer.NewClassifierStrategy()
	}
	return analyzer.NewLesionStrategy()
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
