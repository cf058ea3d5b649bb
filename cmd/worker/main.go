package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"shuttleattendance/internal/config"
	"shuttleattendance/internal/logging"
	"shuttleattendance/internal/queue"
	"shuttleattendance/internal/store"
	"shuttleattendance/internal/tally"
	"shuttleattendance/internal/worker"
)

// Worker consumes recorded-attendance messages and keeps the live dashboard tallies.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("QUEUE_BACKEND=memory is consumed inside the api process; run the worker with the redis queue")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	if err := worker.Run(ctx, q, tally.New(redisClient.Client), logger.Named("worker")); err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}
}
