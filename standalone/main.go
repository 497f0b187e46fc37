package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"watch-party-sync/pkg/logger"
	peer "watch-party-sync/service-peer"

	"golang.org/x/sync/errgroup"
)

// main runs an embedded Redis, the relay and an interactive peer in one process.
// Other peers join with RELAY_URL=http://localhost:8081.
func main() {
	cfg := createEmbeddedConfig()

	logger.InitLogger(cfg)

	logger.Info("Starting Watch Party Sync standalone...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embeddedRedis, redisClient, err := startEmbeddedRedis()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer embeddedRedis.Close()
	updateConfigWithEmbeddedServices(cfg, embeddedRedis.Addr())

	g, gctx := errgroup.WithContext(ctx)
	relayCtx, stopRelay := context.WithCancel(gctx)
	defer stopRelay()

	g.Go(func() error {
		return startRelay(relayCtx, cfg, redisClient)
	})

	g.Go(func() error {
		// quitting the peer stops the relay
		defer stopRelay()
		if err := waitForRelayReady(gctx, cfg.Peer.RelayURL); err != nil {
			return err
		}
		return peer.NewPeer(cfg).Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err, "standalone stopped with error")
		return
	}
	logger.Info("Shutdown complete")
}
