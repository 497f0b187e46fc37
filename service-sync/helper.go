package helper

import (
	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/redis"
	"watch-party-sync/service-sync/internal/app"
)

func NewRelayServer(
	cfg *config.Config,
) *app.AppServer {
	return app.NewAppServer(cfg)
}

func NewRelayServerWithRedis(
	cfg *config.Config,
	redisClient *redis.Client,
) (*app.AppServer, error) {
	return app.NewAppServerWithRedis(cfg, redisClient)
}
