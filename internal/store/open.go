package store

import (
	"context"
	"fmt"

	"shuttleattendance/internal/attendance"
	"shuttleattendance/internal/config"
)

// OpenAttendance connects the attendance store selected by cfg.StoreBackend.
func OpenAttendance(ctx context.Context, cfg config.App) (attendance.Store, error) {
	switch cfg.StoreBackend {
	case "postgres", "":
		db, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return attendance.NewPostgresStore(db), nil
	case "mongo", "mongodb":
		client, err := NewMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		return attendance.NewMongoStore(client, cfg.MongoDatabase), nil
	case "memory":
		return attendance.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
