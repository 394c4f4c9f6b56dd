package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/LeventeLantos/chat-hub/internal/repo"
)

// resources are the store handles owned by one generation.
type resources struct {
	db  *gorm.DB
	rdb *redis.Client
}

func (r *resources) Close() error {
	var errs []error
	if r.rdb != nil {
		if err := r.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if r.db != nil {
		if err := repo.Close(r.db); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
