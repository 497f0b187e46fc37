package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/redis"
	relay "watch-party-sync/service-sync"
)

// startRelay serves the relay until ctx is done
func startRelay(ctx context.Context, cfg *config.Config, redisClient *redis.Client) error {
	server, err := relay.NewRelayServerWithRedis(cfg, redisClient)
	if err != nil {
		return err
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: server.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("Relay running on http://localhost:%s", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("relay server error: %w", err)
	}
	return nil
}

// waitForRelayReady polls the relay health check
func waitForRelayReady(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: time.Second}
	for i := 0; i < 30; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("relay at %s did not become ready", baseURL)
}
