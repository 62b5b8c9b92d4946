// Package main запускает HTTP-сервер интернет-магазина.
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

	"github.com/mmeshcher/commerce-system/internal/config"
	"github.com/mmeshcher/commerce-system/internal/handler"
	"github.com/mmeshcher/commerce-system/internal/mail"
	"github.com/mmeshcher/commerce-system/internal/middleware"
	"github.com/mmeshcher/commerce-system/internal/repository"
	"github.com/mmeshcher/commerce-system/internal/service"
	"github.com/mmeshcher/commerce-system/internal/wompi"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	gateway := wompi.NewClient(cfg.WompiBaseURL, cfg.WompiPublicKey, cfg.WompiIntegritySecret, cfg.WompiEventsSecret)

	var mailer service.Mailer
	if cfg.MailAPIAddress != "" {
		mailer = mail.NewClient(cfg.MailAPIAddress, cfg.MailAPIToken)
	}

	usersSvc := service.NewUsersService(repo, logger)
	cartSvc := service.NewCartService(repo, logger)
	creditsSvc := service.NewCreditsService(repo, gateway, logger)
	couponsSvc := service.NewCouponsService(repo, creditsSvc, logger)
	ordersSvc := service.NewOrdersService(repo, creditsSvc, couponsSvc, gateway, mailer, cfg.CashOnDeliveryCity, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(usersSvc, cartSvc, creditsSvc, couponsSvc, ordersSvc, gateway, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting commerce server", "addr", cfg.RunAddress)
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
