package agentserver

import (
	"context"
	"encoding/json"

	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/workspace"
)

func init() {
	registerOp("ping", opPing)
	registerOp("shutdown", opShutdown)
	registerOp("session_info", opSessionInfo)
	registerOp("session_setup", opSessionSetup)
	registerOp("session_switch_fg", opSessionSwitchFG)
	registerOp("session_disconnect", opSessionDisconnect)
	registerOp("disconnect_port", opDisconnectPort)
	registerOp("set_default", opSetDefault)
	registerOp("connect", opConnect)
}

func opPing(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	return map[string]any{"pong": true}, nil
}

func opShutdown(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	return map[string]any{"shutting_down": true}, nil
}

func opSessionInfo(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	sessions, conns := s.registry.SessionInfo()
	return map[string]any{"sessions": sessions, "connections": conns}, nil
}

type portArgs struct {
	Port string `json:"port"`
}

type sessionSetupArgs struct {
	Port         string `json:"port"`
	AsForeground bool   `json:"as_foreground"`
	SetDefault   bool   `json:"set_default"`
	LocalDefault bool   `json:"local_default"`
	WorkspaceDir string `json:"workspace_dir"`
}

func opSessionSetup(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	var a sessionSetupArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, rerr.Wrap(rerr.ValidationError, "malformed arguments", err)
	}
	if a.Port == "" {
		return nil, rerr.New(rerr.ValidationError, "port is required")
	}
	result, err := s.registry.SessionSetup(sid, a.Port, a.AsForeground)
	if err != nil {
		return nil, err
	}
	if a.SetDefault && a.WorkspaceDir != "" {
		if err := workspace.SetDefault(a.WorkspaceDir, a.Port); err != nil {
			return nil, err
		}
	}
	if a.LocalDefault || a.SetDefault {
		s.registry.SetDefault(sid, a.Port, false, nil)
	}
	return result, nil
}

func opSessionSwitchFG(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	var a portArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, rerr.Wrap(rerr.ValidationError, "malformed arguments", err)
	}
	if err := s.registry.SessionSwitchFG(sid, a.Port); err != nil {
		return nil, err
	}
	return map[string]any{"foreground": a.Port}, nil
}

func opSessionDisconnect(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	var a portArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, rerr.Wrap(rerr.ValidationError, "malformed arguments", err)
	}
	freed, err := s.registry.SessionDisconnect(a.Port)
	if err != nil {
		return nil, err
	}
	return map[string]any{"freed_port": freed}, nil
}

// opDisconnectPort is session_disconnect's alias in the Lifecycle/Session
// command group; same semantics, different entry name.
func opDisconnectPort(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	return opSessionDisconnect(ctx, s, sid, args)
}

type setDefaultArgs struct {
	Port          string `json:"port"`
	WorkspaceDir  string `json:"workspace_dir"`
	WorkspaceWide bool   `json:"workspace_wide"`
}

func opSetDefault(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	var a setDefaultArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, rerr.Wrap(rerr.ValidationError, "malformed arguments", err)
	}
	var setWorkspace func(string) error
	if a.WorkspaceWide && a.WorkspaceDir != "" {
		setWorkspace = func(port string) error { return workspace.SetDefault(a.WorkspaceDir, port) }
	}
	if err := s.registry.SetDefault(sid, a.Port, a.WorkspaceWide, setWorkspace); err != nil {
		return nil, err
	}
	return map[string]any{"default": a.Port}, nil
}

// opConnect is session_setup(as_foreground=true) under the friendlier name
// the CLI's `connect` subcommand uses.
func opConnect(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error) {
	var a portArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, rerr.Wrap(rerr.ValidationError, "malformed arguments", err)
	}
	return s.registry.SessionSetup(sid, a.Port, true)
}
