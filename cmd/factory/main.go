package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"factory/internal/api"
	"factory/internal/api/middleware"
	"factory/internal/cache"
	"factory/internal/codeimage"
	"factory/internal/config"
	"factory/internal/containerport"
	"factory/internal/deployment"
	"factory/internal/identity"
	"factory/internal/keyedlock"
	"factory/internal/ledger"
	"factory/internal/ledgerport"
	"factory/internal/logger"
	"factory/internal/notify"
	"factory/internal/scheduler"
	"factory/internal/store/postgres"
	"factory/internal/strategy"
)

// @title Factory API
// @version 1.0
// @description Deposit ledger, deployment state machine and reconciliation scheduler for strategy deployments.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Info("Starting factory service...")
	log.Infof("Configuration loaded from: %s", *configPath)

	dbConfig := &postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	persistent, err := postgres.New(dbConfig, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer persistent.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := persistent.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	cancel()
	log.Info("Database connection established")

	ledgerPort := ledgerport.NewHTTPClient(cfg.Ledger.Host, cfg.Ledger.Port, cfg.Ledger.Timeout, log)
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := ledgerPort.Ping(ctx); err != nil {
		log.Warnf("Ledger port ping failed: %v (service may be unavailable)", err)
	} else {
		log.Info("Connected to ledger port")
	}
	cancel()

	containerPort := containerport.NewHTTPClient(cfg.Container.Host, cfg.Container.Port, cfg.Container.Timeout, log)
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := containerPort.Ping(ctx); err != nil {
		log.Warnf("Container port ping failed: %v (service may be unavailable)", err)
	} else {
		log.Info("Connected to container port")
	}
	cancel()

	s3Client, err := codeimage.NewS3Client(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to configure object storage client: %v", err)
	}

	feeCache := cache.NewScalarCache(cfg.Settings.CacheTTL)
	log.Info("Settings cache initialized")

	notifier := notify.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.NotifyThreshold, log)
	defer notifier.Close()

	locks := keyedlock.New()

	ledgerSvc := ledger.New(persistent, ledgerPort, feeCache, notifier, locks, cfg.Deploy.MinDeposit, cfg.Deploy.MaxDeposit, log)
	log.Info("Account ledger initialized")

	codeImages := codeimage.New(persistent, s3Client, cfg.Storage.Bucket, log)

	strategies := strategy.New(persistent, log)
	if err := strategies.Rebuild(context.Background()); err != nil {
		log.Fatalf("Failed to rebuild strategy registry: %v", err)
	}

	registry := identity.New(persistent, log)

	machine := deployment.New(persistent, ledgerSvc, codeImages, strategies, containerPort, locks, notifier, deployment.Config{
		MaxInstallAttempts: cfg.Deploy.MaxInstallAttempts,
		RetryBaseInterval:  cfg.Deploy.RetryBaseInterval,
		RetryCapInterval:   cfg.Deploy.RetryCapInterval,
		PendingTTL:         cfg.Deploy.PendingTTL,
		DeploymentTTL:      cfg.Deploy.DeploymentTTL,
		StuckTTL:           cfg.Deploy.StuckTTL,
	}, log)

	recScheduler, err := scheduler.New(persistent, machine, cfg.Deploy.TickInterval, cfg.Deploy.MaxPerTick, cfg.Deploy.RecordRetention, cfg.Deploy.MaxCompletedRecords, log)
	if err != nil {
		log.Fatalf("Failed to create reconciliation scheduler: %v", err)
	}
	if err := recScheduler.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start reconciliation scheduler: %v", err)
	}
	defer recScheduler.Stop()

	jwtMiddleware := middleware.NewJWTMiddleware(cfg.JWT.Secret, log)

	router := api.SetupRouter(ledgerSvc, machine, strategies, codeImages, registry, recScheduler, persistent, jwtMiddleware, log, cfg.Server.GinMode)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("HTTP server is listening on port %s", cfg.Server.HTTPPort)
		log.Infof("Swagger documentation available at: http://localhost:%s/swagger/index.html", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
