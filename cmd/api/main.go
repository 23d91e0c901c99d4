package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"catalog-enricher/internal/app"
	"catalog-enricher/internal/config"
	"catalog-enricher/internal/handlers"
	"catalog-enricher/internal/logger"
	"catalog-enricher/internal/routes"
	"catalog-enricher/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	zl, err := logger.Init(logger.Options{Mode: cfg.LogMode, Filename: cfg.LogFile})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("init application", zap.Error(err))
	}

	sched := scheduler.New(a.Service, time.Local, zl)
	if _, err := sched.Register(a.Jobs); err != nil {
		zl.Fatal("register schedules", zap.Error(err))
	}
	sched.Start()

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	routes.RegisterRoutes(router,
		handlers.NewStoreHandler(a.Service, a.Jobs),
		handlers.NewProductHandler(a.Products, a.Cache),
	)

	httpLog := logger.Named(zl, "http")
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		httpLog.Info("🚀 Server running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpLog.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	<-sched.Stop().Done()
	a.Close(shutdownCtx)
}
