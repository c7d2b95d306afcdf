package agentclient

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/replx-dev/replx/internal/rerr"
)

const pollInterval = 100 * time.Millisecond

// IsAgentRunning reports whether an agent is already listening on
// agentPort: a single short-timeout ping.
func IsAgentRunning(agentPort int) bool {
	c, err := Dial(agentPort, "")
	if err != nil {
		return false
	}
	defer c.Close()
	return c.IsAgentRunning()
}

// StartAgent spawns the agent daemon binary detached from the calling
// terminal and waits up to startupTimeout for it to answer a ping.
// Setsid detaches the child from the CLI's session so it outlives the
// invoking process, stdout/stderr are redirected to a log file, and
// readiness is polled rather than
// signaled, since the child's own first-listen race is otherwise
// unobservable from here.
func StartAgent(exe string, args []string, logPath string, agentPort int) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("prepare agent log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open agent log: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	// The spawning process does not wait on the child: Setsid plus an
	// unreaped Process handle is intentional, the daemon is meant to
	// outlive this CLI invocation.

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if IsAgentRunning(agentPort) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return rerr.New(rerr.Timeout, "agent did not become ready within the startup window")
}

// StopAgent sends shutdown and waits for the socket to stop responding,
// confirming the agent actually exited rather than merely acknowledging.
func StopAgent(agentPort int, sid string) error {
	c, err := Dial(agentPort, sid)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.SendCommand(context.Background(), "shutdown", "", nil, 5*time.Second); err != nil && !rerr.Is(err, rerr.Timeout) {
		return err
	}

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if !IsAgentRunning(agentPort) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return rerr.New(rerr.Timeout, "agent did not shut down within the grace window")
}
