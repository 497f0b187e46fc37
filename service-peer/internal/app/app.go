package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"
	"watch-party-sync/pkg/transport"
	"watch-party-sync/service-peer/internal/engine"
	"watch-party-sync/service-peer/internal/player"
	"watch-party-sync/service-peer/internal/session"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// PeerApp is one peer: engine, simulated player, session lifecycle and a console
type PeerApp struct {
	config   *config.Config
	engine   *engine.Engine
	player   *player.SimulatedPlayer
	adapter  *player.Adapter
	sessions *session.Manager
	console  *Console
	in       io.Reader
	out      io.Writer
}

// NewPeerApp wires a peer. Without a relay url every session is local only.
func NewPeerApp(cfg *config.Config, in io.Reader, out io.Writer) *PeerApp {
	local := model.NewParticipant(cfg.Peer.ParticipantID, cfg.Peer.DisplayName, time.Now())

	eng := engine.New(engine.Options{
		LocalID: local.ID,
		Sync:    cfg.Sync,
	})

	simulated := player.NewSimulatedPlayer(player.SimulatedOptions{LoadDelay: 300 * time.Millisecond})
	adapter := player.NewAdapter(simulated, eng, player.OptionsFromConfig(cfg.Sync))
	eng.SetSink(adapter)

	sessions := session.NewManager(session.Options{
		Activator: newActivator(cfg, local),
		Engine:    eng,
	})

	return &PeerApp{
		config:   cfg,
		engine:   eng,
		player:   simulated,
		adapter:  adapter,
		sessions: sessions,
		console:  NewConsole(eng, sessions, adapter, local.DisplayName),
		in:       in,
		out:      out,
	}
}

func newActivator(cfg *config.Config, local model.Participant) transport.Activator {
	if cfg.Peer.RelayURL == "" {
		return transport.LocalActivator{}
	}
	return transport.NewRelayActivator(cfg.Peer.RelayURL, cfg.Peer.SessionID, local, cfg.Peer.Token)
}

// Serve runs the peer until interrupted or the console quits
func (a *PeerApp) Serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("peer %s started (relay: %q, session: %s)", a.config.Peer.ParticipantID, a.config.Peer.RelayURL, a.config.Peer.SessionID)
	if err := a.Run(ctx); err != nil {
		logger.Error(err, "peer stopped with error")
		return
	}
	logger.Info("peer shutdown complete")
}

// Run drives the player, the adapter and the console until ctx is done or the
// console quits, then leaves any session.
func (a *PeerApp) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.adapter.Run(gctx)
	})
	g.Go(func() error {
		return a.player.Run(gctx, a.config.Sync.TimeReportInterval)
	})
	g.Go(func() error {
		a.reportSessions(gctx)
		return nil
	})
	g.Go(func() error {
		return a.readCommands(gctx)
	})

	err := g.Wait()
	a.shutdown()

	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *PeerApp) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.sessions.LeaveSession(ctx); err != nil {
		logger.Error(err, "failed to leave session")
	}
	a.engine.Close()
}

// readCommands executes console lines. End of input quits.
func (a *PeerApp) readCommands(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(a.out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			out, err := a.console.Execute(ctx, line)
			if errors.Is(err, errQuit) {
				return errQuit
			}
			if err != nil {
				fmt.Fprintf(a.out, "error: %v\n", err)
				continue
			}
			if out != "" {
				fmt.Fprintln(a.out, out)
			}
		}
	}
}

func (a *PeerApp) reportSessions(ctx context.Context) {
	for state := range a.sessions.Watch(ctx) {
		logger.Infof("session: %s", state.Description())
	}
}
