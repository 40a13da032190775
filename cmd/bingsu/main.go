// Package main запускает HTTP-сервер сервиса заказов бинсу.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bingsu-order-system/internal/config"
	"github.com/mmeshcher/bingsu-order-system/internal/events"
	"github.com/mmeshcher/bingsu-order-system/internal/handler"
	"github.com/mmeshcher/bingsu-order-system/internal/middleware"
	"github.com/mmeshcher/bingsu-order-system/internal/repository"
	"github.com/mmeshcher/bingsu-order-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		repo = repository.NewMemoryRepository()
	}

	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err = events.NewSaramaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic, logger)
		if err != nil {
			sugar.Fatalw("kafka producer initialization error", "error", err.Error())
		}
	}
	defer pub.Close()

	svc := service.NewService(repo, pub, service.Options{
		MenuCodeTTL:      cfg.MenuCodeTTL,
		MenuCodeMaxUsage: cfg.MenuCodeMaxUsage,
	}, logger)
	defer svc.Close()

	if cfg.AdminLogin != "" {
		created, err := svc.Accounts.EnsureAdmin(context.Background(), cfg.AdminLogin, cfg.AdminPassword)
		if err != nil {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
		if created {
			sugar.Infow("admin account created", "login", cfg.AdminLogin)
		}
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(handler.Services{
		Accounts:  svc.Accounts,
		Stock:     svc.Stock,
		MenuCodes: svc.MenuCodes,
		Orders:    svc.Orders,
		Reviews:   svc.Reviews,
		Stats:     svc.Dashboard,
		Health:    svc,
	}, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая очистка просроченных кодов меню
	svc.MenuCodes.StartCleanup(ctx, cfg.CodeCleanupInterval)

	g.Go(func() error {
		sugar.Infow("starting bingsu server", "addr", cfg.RunAddress, "events", len(cfg.KafkaBrokers) > 0)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
