package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replx-dev/replx/internal/config"
)

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the agent daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := r.send("ping", nil, &out); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Println("pong")
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current connection's busy state",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := r.send("status", nil, &out); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Printf("port=%v busy=%v kind=%v command=%v\n", out["port"], out["busy"], out["kind"], out["command"])
			}
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions and connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out struct {
				Sessions    []map[string]any `json:"sessions"`
				Connections []map[string]any `json:"connections"`
			}
			if err := r.send("session_info", nil, &out); err != nil {
				return err
			}
			if flagJSON {
				return nil
			}
			for _, c := range out.Connections {
				fmt.Printf("%v\tbusy=%v\n", c["Port"], c["Busy"])
			}
			for _, s := range out.Sessions {
				fmt.Printf("session %v: fg=%v bg=%v default=%v\n", s["SID"], s["Foreground"], s["Backgrounds"], s["DefaultPort"])
			}
			return nil
		},
	}
}

func connectCmd() *cobra.Command {
	var asDefault bool
	cmd := &cobra.Command{
		Use:   "connect <port>",
		Short: "Open (or promote to foreground) a connection to a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flagPort = args[0]
			r, err := resolve()
			if err != nil {
				return err
			}
			payload := map[string]any{"port": args[0], "as_foreground": true, "set_default": asDefault}
			if asDefault {
				wsDir, err := config.WorkspaceDir()
				if err != nil {
					return err
				}
				payload["workspace_dir"] = wsDir
			}
			var out map[string]any
			if err := r.send("session_setup", payload, &out); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Printf("connected: %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asDefault, "default", false, "also record this port as the workspace default")
	return cmd
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <port>",
		Short: "Disconnect a port, freeing the connection if no session needs it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			payload := map[string]any{"port": args[0]}
			var out map[string]any
			if err := r.send("session_disconnect", payload, &out); err != nil {
				return err
			}
			if !flagJSON {
				freed, _ := json.Marshal(out["freed_port"])
				fmt.Printf("disconnected: %s (freed=%s)\n", args[0], freed)
			}
			return nil
		},
	}
}
