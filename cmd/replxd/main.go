// Command replxd is the agent daemon entry point: a thin wrapper around
// internal/daemon.Run.
package main

import (
	"fmt"
	"os"

	"github.com/replx-dev/replx/internal/config"
	"github.com/replx-dev/replx/internal/daemon"
	"github.com/replx-dev/replx/internal/logger"
)

func main() {
	userDir, err := config.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replxd: %v\n", err)
		os.Exit(1)
	}
	if err := config.EnsureDirs(userDir); err != nil {
		fmt.Fprintf(os.Stderr, "replxd: %v\n", err)
		os.Exit(1)
	}

	mgr := config.NewManager()
	workspaceDir, _ := config.WorkspaceDir()
	if err := mgr.Load(userDir, workspaceDir); err != nil {
		fmt.Fprintf(os.Stderr, "replxd: load config: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get()

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "replxd: init logger: %v\n", err)
		os.Exit(1)
	}

	if err := daemon.Run(daemon.Options{Config: cfg, Dir: userDir}); err != nil {
		logger.Error("daemon exited with error", "err", err)
		os.Exit(1)
	}
}
