package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"shuttleattendance/internal/config"
	"shuttleattendance/internal/logging"
	"shuttleattendance/internal/store"
)

// Migrate creates the attendance schema and indexes for the configured backend and exits.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := store.OpenAttendance(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = st.Close(context.Background()) }()

	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Fatal("ensure indexes", zap.Error(err))
	}
	logger.Info("attendance indexes ensured", zap.String("backend", cfg.StoreBackend))
}
