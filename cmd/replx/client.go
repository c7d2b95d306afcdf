package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/replx-dev/replx/internal/agentclient"
	"github.com/replx-dev/replx/internal/config"
	"github.com/replx-dev/replx/internal/sessionid"
	"github.com/replx-dev/replx/internal/workspace"
)

const defaultAgentPort = 7821

// resolved bundles what every subcommand needs to send a request: a dialed
// client, the session id, and the target port (possibly empty for
// registry-level ops that don't need one).
type resolved struct {
	client *agentclient.Client
	sid    string
	port   string
}

// resolve finds the workspace, ensures an agent daemon is reachable on the
// recorded (or default) port, auto-starting it if not, and returns a ready
// client. Same "client talks to a config-resolved endpoint, starting the
// server on demand if absent" shape, generalized here to actually spawn
// the daemon rather than just dialing.
func resolve() (*resolved, error) {
	wsDir, err := config.WorkspaceDir()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	wsCfg, err := workspace.Load(wsDir)
	if err != nil {
		return nil, fmt.Errorf("load workspace config: %w", err)
	}

	port := flagPort
	if port == "" {
		port = wsCfg.Default
	}

	agentPort := flagAgentPort
	if agentPort == 0 && port != "" {
		if entry, ok := wsCfg.Ports[port]; ok && entry.AgentPort != 0 {
			agentPort = entry.AgentPort
		}
	}
	if agentPort == 0 {
		agentPort = defaultAgentPort
	}

	sid := sessionid.Get()

	if !agentclient.IsAgentRunning(agentPort) {
		if err := startDaemon(agentPort); err != nil {
			return nil, fmt.Errorf("start agent daemon: %w", err)
		}
	}

	c, err := agentclient.Dial(agentPort, sid)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	return &resolved{client: c, sid: sid, port: port}, nil
}

// startDaemon locates the replxd binary next to the running replx binary
// (falling back to PATH) and spawns it detached.
func startDaemon(agentPort int) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	replxd := filepath.Join(filepath.Dir(exe), "replxd")
	if _, err := os.Stat(replxd); err != nil {
		found, lookErr := exec.LookPath("replxd")
		if lookErr != nil {
			return fmt.Errorf("replxd not found next to replx or on PATH: %w", lookErr)
		}
		replxd = found
	}

	userDir, err := config.UserConfigDir()
	if err != nil {
		return err
	}
	logPath := filepath.Join(userDir, "replxd.log")
	return agentclient.StartAgent(replxd, nil, logPath, agentPort)
}

// send is the shared request path every subcommand uses: marshal args,
// send with the default 10s timeout, unmarshal or print raw JSON.
func (r *resolved) send(command string, args any, out any) error {
	payload, err := marshalArgs(args)
	if err != nil {
		return err
	}
	result, err := r.client.SendCommand(context.Background(), command, r.port, payload, 10*time.Second)
	if err != nil {
		return err
	}
	return renderResult(result, out)
}

// sendStreaming is send's counterpart for long-running commands (exec,
// run, transfers) that emit stdout/stderr/progress before the final result.
func (r *resolved) sendStreaming(command string, args any, out any, onOutput agentclient.OutputCallback, onProgress agentclient.ProgressCallback, timeout time.Duration) error {
	payload, err := marshalArgs(args)
	if err != nil {
		return err
	}
	result, err := r.client.SendCommandStreaming(context.Background(), command, r.port, payload, timeout, onOutput, onProgress)
	if err != nil {
		return err
	}
	return renderResult(result, out)
}

func marshalArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	return json.Marshal(args)
}

func renderResult(result json.RawMessage, out any) error {
	if flagJSON || out == nil {
		if len(result) > 0 {
			fmt.Println(string(result))
		}
		return nil
	}
	if len(result) == 0 {
		return nil
	}
	return json.Unmarshal(result, out)
}
