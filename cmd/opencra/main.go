package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencra/opencra/internal/app"
	"github.com/opencra/opencra/internal/identity"
	"github.com/opencra/opencra/internal/migrate"
	"github.com/opencra/opencra/internal/mission"
	"github.com/opencra/opencra/internal/platform/db"
	"github.com/opencra/opencra/internal/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrate.Up(ctx, pool); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	missionRepo := mission.NewRepository(pool)
	reportRepo := report.NewRepository(pool)
	reportService := report.NewService(reportRepo, missionRepo, logger)
	reportHandler := report.NewHandler(logger, reportService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		IdentityProvider: identity.NewPGProvider(pool),
		ReportHandler:    reportHandler,
		Pool:             pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      http.TimeoutHandler(router, cfg.AppRequestTimeout, "request timed out"),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
