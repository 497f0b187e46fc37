package main

import (
	"fmt"

	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// startEmbeddedRedis runs an in-process Redis for rosters and frame fan-out
func startEmbeddedRedis() (*miniredis.Miniredis, *redis.Client, error) {
	logger.Info("Starting embedded Redis...")

	embedded, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Redis: %w", err)
	}

	client, err := redis.NewClientWithOptions(&goredis.Options{
		Addr: embedded.Addr(),
		DB:   0,
	})
	if err != nil {
		embedded.Close()
		return nil, nil, err
	}

	logger.Infof("Embedded Redis started on %s", embedded.Addr())
	return embedded, client, nil
}
