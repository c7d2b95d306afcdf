// Package daemon wires together the session registry, the agent server,
// and the history store into the long-running replxd process: store
// opened first, a signal.Notify'd sigCh raced against an errCh fed by
// the long-running goroutines, and a bounded grace-period sleep on
// shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/replx-dev/replx/internal/agentserver"
	"github.com/replx-dev/replx/internal/config"
	"github.com/replx-dev/replx/internal/connection"
	"github.com/replx-dev/replx/internal/history"
	"github.com/replx-dev/replx/internal/logger"
	"github.com/replx-dev/replx/internal/session"
	"github.com/replx-dev/replx/internal/transport"
)

const gracePeriod = time.Second

// Options configures one daemon run; Dir is the user config directory
// (~/.replx), used for the history database and default log file.
type Options struct {
	Config *config.Config
	Dir    string
}

// Run starts the agent server and blocks until a signal arrives or a
// long-running goroutine exits with an error.
func Run(opts Options) error {
	cfg := opts.Config

	histPath := filepath.Join(opts.Dir, "history.db")
	hist, err := history.Open(histPath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer hist.Close()

	open := func(port string) (*connection.Connection, error) {
		t, err := transport.Open(port, 0)
		if err != nil {
			return nil, err
		}
		c := connection.New(port, t, "", nil)
		c.OnEvent(func(p, event string) {
			logger.Info("connection event", "port", p, "event", event)
			detail := event
			_ = hist.Append(p, event, &detail)
		})
		return c, nil
	}

	reg := session.New(open)

	srv, err := agentserver.Listen(cfg.AgentPortBase, cfg.AgentPortCeiling, reg, logger.Log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agent listening", "port", srv.Port())
		errCh <- srv.Serve(ctx)
	}()

	go gcLoop(ctx, reg)

	logger.Info("replxd started", "port", srv.Port(), "dir", opts.Dir)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		reg.CloseAll()
		cancel()
		time.Sleep(gracePeriod)
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			cancel()
			return fmt.Errorf("daemon error: %w", err)
		}
	}
	return nil
}

// gcLoop calls reg.GC with processAlive every 30 seconds. processAlive
// reports every session as alive, so this loop removes no sessions.
func gcLoop(ctx context.Context, reg *session.Registry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.GC(processAlive)
		}
	}
}

func processAlive(sid string) bool {
	// Session ids are not raw pids (see internal/sessionid); without a
	// reverse mapping from sid back to a live pid, liveness can't be
	// checked cheaply here, so sessions are never GC'd by this path alone
	// pending a future sid->pid index. Kept conservative: always alive.
	return true
}
