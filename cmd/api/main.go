package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shuttleattendance/internal/attendance"
	"shuttleattendance/internal/config"
	"shuttleattendance/internal/handler"
	"shuttleattendance/internal/httpmiddleware"
	"shuttleattendance/internal/logging"
	"shuttleattendance/internal/queue"
	"shuttleattendance/internal/store"
	"shuttleattendance/internal/tally"
	"shuttleattendance/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.OpenAttendance(connectCtx, cfg)
	if err == nil {
		err = st.EnsureIndexes(connectCtx)
	}
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Close(closeCtx)
	}()
	logger.Info("attendance store ready", zap.String("backend", cfg.StoreBackend), zap.String("timezone", loc.String()))

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	liveTally := tally.New(redisClient.Client)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		// No separate worker can read an in-process queue, so consume it here.
		go func() {
			if err := worker.Run(ctx, mem, liveTally, logger.Named("worker")); err != nil {
				logger.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	svc := attendance.NewService(st,
		attendance.WithLocation(loc),
		attendance.WithPublisher(q),
		attendance.WithLogger(logger.Named("attendance")))

	h := handler.New(svc, liveTally, handler.Config{
		SigningKey:   cfg.JWTSigningKey,
		Issuer:       cfg.JWTIssuer,
		AccessTTL:    cfg.AccessTTL,
		RefreshTTL:   cfg.RefreshTTL,
		IssueTokens:  cfg.IssueTokens && !cfg.Production(),
		StoreTimeout: cfg.StoreTimeout,
	}, logger.Named("http"))
	h.AddCheck("store", st.Ping)
	h.AddCheck("redis", func(ctx context.Context) error {
		if !redisClient.Healthy(ctx) {
			return errors.New("redis unreachable")
		}
		return nil
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	h.Routes(r, httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding scans 10 seconds to complete.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
