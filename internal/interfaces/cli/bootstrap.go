// Package cli carries the bootstrap steps shared by every
// subcommand: configuration, logging and the Redis-backed cache.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"serverstf/internal/infrastructure/cache"
	"serverstf/internal/infrastructure/config"
	apperrors "serverstf/internal/shared/errors"
	"serverstf/internal/shared/logger"
)

// Bootstrap loads configuration and installs the process logger.
func Bootstrap() (*config.Config, logger.Interface, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.NewLogger(), nil
}

// OpenCache connects to Redis and returns a cache over it. redisURL
// overrides the configured URL when non-empty. An unreachable Redis
// is fatal.
func OpenCache(cfg *config.Config, redisURL string, log logger.Interface) (*cache.Cache, *redis.Client, error) {
	url := cfg.Redis.URL
	if redisURL != "" {
		url = redisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL %q: %w", url, err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, apperrors.Fatal("failed to connect to redis", err)
	}

	log.Infow("connected to redis", "url", url)
	return cache.New(client, log), client, nil
}
