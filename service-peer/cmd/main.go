package main

import (
	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	helper "watch-party-sync/service-peer"
)

func main() {
	// initialize configuration
	cfg := config.NewPeerConfig()

	// initialize logger
	logger.InitLogger(cfg)

	// run the peer until interrupted
	peer := helper.NewPeer(cfg)
	peer.Serve()
}
