package main

import (
	"net"
	"os"

	"watch-party-sync/pkg/config"

	"github.com/google/uuid"
)

// createEmbeddedConfig creates a hardcoded configuration for the standalone application
func createEmbeddedConfig() *config.Config {
	name := os.Getenv("DISPLAY_NAME")
	if name == "" {
		name = "Host"
	}

	return &config.Config{
		Port:      "8081",
		JWTSecret: "embedded-jwt-secret-key-change-in-production",
		Log: config.LogConfig{
			Level:  "info",
			Format: "console",
		},
		Redis: config.RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		},
		Sync: config.DefaultSyncConfig(),
		Peer: config.PeerConfig{
			RelayURL:      "http://localhost:8081",
			SessionID:     "lobby",
			ParticipantID: uuid.NewString(),
			DisplayName:   name,
		},
	}
}

// updateConfigWithEmbeddedServices points the config at the embedded Redis
func updateConfigWithEmbeddedServices(cfg *config.Config, redisAddr string) {
	if host, port, err := net.SplitHostPort(redisAddr); err == nil {
		cfg.Redis.Host = host
		cfg.Redis.Port = port
	}
}
