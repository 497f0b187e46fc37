package main

import (
	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	helper "watch-party-sync/service-sync"
)

func main() {
	// initialize configuration
	cfg := config.NewConfig()

	// initialize logger
	logger.InitLogger(cfg)

	// create and start the relay
	server := helper.NewRelayServer(cfg)
	server.Serve()
}
