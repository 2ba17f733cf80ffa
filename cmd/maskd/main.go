package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/config"
	"github.com/quietmask/maskd/internal/gateway"
	"github.com/quietmask/maskd/internal/handler"
	"github.com/quietmask/maskd/internal/middleware"
	"github.com/quietmask/maskd/internal/web"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("maskd starting",
		zap.String("listen", cfg.ListenAddr),
		zap.Int("maxSessions", cfg.MaxSessions),
		zap.Int("autoStopSec", cfg.AutoStopSec),
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create gateway", zap.Error(err))
	}

	h := handler.NewHandlers(gw, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/v1", h.Routes())
	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: the MP3 stream endpoint holds connections open
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	gw.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
