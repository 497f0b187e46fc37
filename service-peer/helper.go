package helper

import (
	"os"

	"watch-party-sync/pkg/config"
	"watch-party-sync/service-peer/internal/app"
)

func NewPeer(
	cfg *config.Config,
) *app.PeerApp {
	return app.NewPeerApp(cfg, os.Stdin, os.Stdout)
}
