package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/LeventeLantos/chat-hub/internal/api"
	"github.com/LeventeLantos/chat-hub/internal/app"
	"github.com/LeventeLantos/chat-hub/internal/config"
	"github.com/LeventeLantos/chat-hub/internal/logging"
	"github.com/LeventeLantos/chat-hub/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("chat hub stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub, err := app.New(*cfg, logger)
	if err != nil {
		return err
	}
	defer hub.Close()

	reporter, err := scheduler.New("stats", cfg.Stats.Interval, hub.ReportStats, logger)
	if err != nil {
		return err
	}
	reporter.Start(ctx)
	defer reporter.Stop()

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(hub, reporter))),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", zap.String("addr", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", zap.Error(err))
		}
	}()

	logger.Info("chat hub starting",
		zap.String("outgoing_queue", cfg.Broker.OutgoingQueue),
		zap.Strings("incoming_queues", cfg.Broker.IncomingQueues),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
	)

	runErr := hub.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown", zap.Error(err))
	}

	logger.Info("chat hub stopped")
	return runErr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
