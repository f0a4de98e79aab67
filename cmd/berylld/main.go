package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"beryll-workflow-backend/config"
	"beryll-workflow-backend/internal/api"
	"beryll-workflow-backend/internal/audit"
	"beryll-workflow-backend/internal/db"
	"beryll-workflow-backend/internal/history"
	"beryll-workflow-backend/internal/ledger"
	"beryll-workflow-backend/internal/notification"
	"beryll-workflow-backend/internal/pool"
	"beryll-workflow-backend/internal/sla"
	"beryll-workflow-backend/internal/ticket"
	"beryll-workflow-backend/internal/workflow"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatalf("failed to load configuration from %s", configPath)
	}
	logger.Infof("configuration loaded from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatal("VAPID keys must be configured")
	}
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	logger.Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workers.Start(ctx)

	lg := ledger.New(gormDB)
	pl := pool.New(gormDB)
	tk := ticket.New(gormDB)

	engine := workflow.New(workflow.Options{
		DB:           gormDB,
		Ledger:       lg,
		Pool:         pl,
		Tickets:      tk,
		Deadline:     sla.NewPolicyCalculator(cfg.Sla),
		Audit:        audit.NewGormSink(gormDB, logger),
		History:      history.NewGormSink(gormDB, logger),
		Notifier:     workers,
		Log:          logger,
		RepeatWindow: time.Duration(cfg.Workflow.RepeatWindowDays) * 24 * time.Hour,
	})

	handler := api.NewHandler(gormDB, engine, lg, pl, tk, &webpushOptions, cfg.Workflow.WarrantyAlertDays)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("HTTP server shutdown")
	}

	logger.Info("server gracefully stopped")
}
